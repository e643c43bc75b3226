package broker

// Redis key naming for broker-owned state. All keys live under the broker's
// "queue:" namespace; the job type is the queue name.

// triggerKey returns the hash key for one trigger: queue:{type}:trigger:{key}
func triggerKey(jobType, key string) string {
	return "queue:" + jobType + ":trigger:" + key
}

// triggersKey returns the sorted set tracking a type's trigger keys for
// paged listing: queue:{type}:triggers
func triggersKey(jobType string) string {
	return "queue:" + jobType + ":triggers"
}

// itemKey returns the hash key for one work item: queue:{type}:item:{id}
func itemKey(jobType, id string) string {
	return "queue:" + jobType + ":item:" + id
}

// itemsKey returns the sorted set tracking a type's work item ids.
func itemsKey(jobType string) string {
	return "queue:" + jobType + ":items"
}

// itemSeqKey is the counter allocating work item ids for a type.
func itemSeqKey(jobType string) string {
	return "queue:" + jobType + ":item_seq"
}

// eventsKey returns the Pub/Sub channel carrying a type's lifecycle events.
func eventsKey(jobType string) string {
	return "queue:" + jobType + ":events"
}
