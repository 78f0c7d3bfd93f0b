package service

import "homeledger/internal/model"

// RefreshNotifier receives period refresh requests after a posting commits.
// Implementations must not block.
type RefreshNotifier interface {
	NotifyPeriodRefresh(event model.PeriodRefreshEvent)
}

type nopNotifier struct{}

func (nopNotifier) NotifyPeriodRefresh(model.PeriodRefreshEvent) {}
