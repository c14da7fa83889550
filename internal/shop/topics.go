package shop

import "strconv"

const TopicOrderPlaced = "order.placed"

// Partition key = order_id, supaya semua event 1 order maintain urutan.
func PartitionKey(orderID int64) string { return strconv.FormatInt(orderID, 10) }
