package sqlstore

import (
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-marketplace/core"
)

var (
	_ core.OrderStore             = (*OrderStore)(nil)
	_ core.ProposalStore          = (*ProposalStore)(nil)
	_ core.UnitOfWork             = (*UnitOfWork)(nil)
	_ core.TxStores               = txStores{}
	_ core.NotificationStore      = (*NotificationStore)(nil)
	_ core.PreferenceStore        = (*PreferenceStore)(nil)
	_ core.PreferenceStore        = (*CachedPreferenceStore)(nil)
	_ core.CategoryDirectory      = (*DirectoryStore)(nil)
	_ core.UserDirectory          = (*DirectoryStore)(nil)
	_ core.OutboxStore            = (*OutboxStore)(nil)
	_ core.DispatchLedger         = (*DispatchLedgerStore)(nil)
	_ core.AuditSink              = (*AuditStore)(nil)
	_ queue.Enqueuer              = (*JobQueue)(nil)
	_ queue.Dequeuer              = (*JobQueue)(nil)
	_ queue.Delivery              = (*jobDelivery)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
