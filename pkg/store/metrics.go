package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	appendsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memodb_message_appends_total",
		Help: "Messages durably appended.",
	})
	appendDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memodb_message_append_duplicates_total",
		Help: "Appends short-circuited by the idempotency index.",
	})
	listsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memodb_message_lists_total",
		Help: "List queries served.",
	})
	threadDeletes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memodb_thread_deletes_total",
		Help: "Threads deleted (messages cascaded).",
	})
	storageRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memodb_storage_retries_total",
		Help: "Pebble operations retried after transient failure.",
	})
	prunedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memodb_retention_pruned_messages_total",
		Help: "Messages removed by retention runs.",
	})
)
