package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-marketplace/core"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db *bun.DB

	orderStore        *OrderStore
	proposalStore     *ProposalStore
	unitOfWork        *UnitOfWork
	notificationStore *NotificationStore
	preferenceStore   *PreferenceStore
	directoryStore    *DirectoryStore
	outboxStore       *OutboxStore
	dispatchLedger    *DispatchLedgerStore
	auditStore        *AuditStore
	jobQueue          *JobQueue
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	if client == nil {
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	}
	return NewRepositoryFactoryFromDB(client.DB())
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{}
	if err := factory.initStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	db, err := resolveBunDB(persistenceClient)
	if err != nil {
		return nil, err
	}
	next := &RepositoryFactory{}
	if err := next.initStores(db); err != nil {
		return nil, err
	}
	return next, nil
}

func (f *RepositoryFactory) initStores(db *bun.DB) (err error) {
	if db == nil {
		return fmt.Errorf("sqlstore: bun db is required")
	}
	f.db = db
	if f.orderStore, err = NewOrderStore(db); err != nil {
		return err
	}
	if f.proposalStore, err = NewProposalStore(db); err != nil {
		return err
	}
	if f.unitOfWork, err = NewUnitOfWork(db); err != nil {
		return err
	}
	if f.notificationStore, err = NewNotificationStore(db); err != nil {
		return err
	}
	if f.preferenceStore, err = NewPreferenceStore(db); err != nil {
		return err
	}
	if f.directoryStore, err = NewDirectoryStore(db); err != nil {
		return err
	}
	if f.outboxStore, err = NewOutboxStore(db); err != nil {
		return err
	}
	if f.dispatchLedger, err = NewDispatchLedgerStore(db); err != nil {
		return err
	}
	if f.auditStore, err = NewAuditStore(db); err != nil {
		return err
	}
	if f.jobQueue, err = NewJobQueue(db); err != nil {
		return err
	}
	return nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) OrderStore() core.OrderStore {
	if f == nil || f.orderStore == nil {
		return nil
	}
	return f.orderStore
}

func (f *RepositoryFactory) ProposalStore() core.ProposalStore {
	if f == nil || f.proposalStore == nil {
		return nil
	}
	return f.proposalStore
}

func (f *RepositoryFactory) UnitOfWork() core.UnitOfWork {
	if f == nil || f.unitOfWork == nil {
		return nil
	}
	return f.unitOfWork
}

func (f *RepositoryFactory) NotificationStore() core.NotificationStore {
	if f == nil || f.notificationStore == nil {
		return nil
	}
	return f.notificationStore
}

func (f *RepositoryFactory) PreferenceStore() core.PreferenceStore {
	if f == nil || f.preferenceStore == nil {
		return nil
	}
	return f.preferenceStore
}

func (f *RepositoryFactory) CategoryDirectory() core.CategoryDirectory {
	if f == nil || f.directoryStore == nil {
		return nil
	}
	return f.directoryStore
}

func (f *RepositoryFactory) UserDirectory() core.UserDirectory {
	if f == nil || f.directoryStore == nil {
		return nil
	}
	return f.directoryStore
}

func (f *RepositoryFactory) Directory() *DirectoryStore {
	if f == nil {
		return nil
	}
	return f.directoryStore
}

func (f *RepositoryFactory) OutboxStore() *OutboxStore {
	if f == nil {
		return nil
	}
	return f.outboxStore
}

func (f *RepositoryFactory) DispatchLedger() *DispatchLedgerStore {
	if f == nil {
		return nil
	}
	return f.dispatchLedger
}

func (f *RepositoryFactory) AuditStore() *AuditStore {
	if f == nil {
		return nil
	}
	return f.auditStore
}

func (f *RepositoryFactory) JobQueue() *JobQueue {
	if f == nil {
		return nil
	}
	return f.jobQueue
}

func resolveBunDB(client any) (*bun.DB, error) {
	switch typed := client.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		return typed.DB(), nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", client)
	}
}
