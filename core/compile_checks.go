package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ NotificationSender = (*NotificationDispatcher)(nil)
	_ OutboxHandler      = (*ProposalAcceptedHandler)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
