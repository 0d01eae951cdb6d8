package repository

import "errors"

var (
	// ErrStateConflict возвращается, когда условное обновление по текущему
	// статусу не затронуло ни одной строки: состояние изменил кто-то другой.
	ErrStateConflict = errors.New("state changed concurrently")

	// ErrDuplicatePendingProof возвращается при попытке добавить второй
	// чек в статусе pending к одному платежу.
	ErrDuplicatePendingProof = errors.New("payment already has a pending proof")

	// ErrActiveDisputeExists возвращается при попытке открыть второй
	// активный спор по контракту.
	ErrActiveDisputeExists = errors.New("contract already has an active dispute")
)
