package service

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/workdeal-backend/internal/domain/valueobject"
	"github.com/ignatzorin/workdeal-backend/internal/logger"
	"github.com/ignatzorin/workdeal-backend/internal/models"
	"github.com/ignatzorin/workdeal-backend/internal/pkg/apperror"
	"github.com/ignatzorin/workdeal-backend/internal/repository"
)

const (
	pairingCodeLength   = 8
	pairingCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	// Отмена без спора возможна только заранее; ближе к началу работы
	// контракт расторгается только через спор.
	cancellationBoundary = 24 * time.Hour
)

// ContractService управляет жизненным циклом контракта: принятие условий,
// сопряжение, подтверждение завершения, отмена и продление.
type ContractService struct {
	contracts      ContractStore
	pairingCodeTTL time.Duration
}

func NewContractService(contracts ContractStore, pairingCodeTTL time.Duration) *ContractService {
	if pairingCodeTTL <= 0 {
		pairingCodeTTL = 24 * time.Hour
	}
	return &ContractService{contracts: contracts, pairingCodeTTL: pairingCodeTTL}
}

// GetContract возвращает контракт по идентификатору.
func (s *ContractService) GetContract(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	return s.contracts.GetByID(ctx, id)
}

// AcceptContract — исполнитель принимает предложенный контракт.
func (s *ContractService) AcceptContract(ctx context.Context, contractID, doerID uuid.UUID) (*models.Contract, error) {
	c, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if c.DoerID != doerID {
		return nil, apperror.ErrForbidden
	}

	expected := c.Status
	if c.Status, err = c.Status.Transition(valueobject.ContractStatusAccepted); err != nil {
		return nil, err
	}

	outbox := contractParticipantNotifications(c, "contract.accepted")
	if err := s.contracts.UpdateGuarded(ctx, c, expected, outbox); err != nil {
		return nil, mapContractConflict(err)
	}
	return c, nil
}

// AcceptTerms фиксирует принятие условий одной из сторон. При взаимном
// принятии и уже удержанном escrow контракт сразу открывается.
func (s *ContractService) AcceptTerms(ctx context.Context, contractID, userID uuid.UUID) (*models.Contract, error) {
	c, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}

	switch userID {
	case c.ClientID:
		c.TermsAcceptedByClient = true
	case c.DoerID:
		c.TermsAcceptedByDoer = true
	default:
		return nil, apperror.ErrForbidden
	}

	expected := c.Status
	var outbox []models.OutboxMessage
	if c.Status == valueobject.ContractStatusAccepted && c.TermsMutuallyAccepted() &&
		(c.PairingConfirmed() || c.EscrowStatus == models.EscrowStatusHeld) {
		c.Status = valueobject.ContractStatusInProgress
		outbox = contractParticipantNotifications(c, "contract.in_progress")
	}

	if err := s.contracts.UpdateGuarded(ctx, c, expected, outbox); err != nil {
		return nil, mapContractConflict(err)
	}
	return c, nil
}

// GeneratePairingCode выдаёт одноразовый код сопряжения. Код доступен
// только после взаимного принятия условий и не раньше, чем за 24 часа
// до начала работы.
func (s *ContractService) GeneratePairingCode(ctx context.Context, contractID, userID uuid.UUID) (*models.Contract, string, error) {
	c, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, "", err
	}
	if userID != c.ClientID && userID != c.DoerID {
		return nil, "", apperror.ErrForbidden
	}
	if c.Status != valueobject.ContractStatusAccepted {
		return nil, "", apperror.New(apperror.ErrCodeInvalidState,
			"код сопряжения доступен только для принятого контракта")
	}
	if !c.TermsMutuallyAccepted() {
		return nil, "", apperror.New(apperror.ErrCodeInvalidState,
			"сначала обе стороны должны принять условия")
	}
	if time.Until(c.StartDate) > 24*time.Hour {
		return nil, "", apperror.New(apperror.ErrCodeInvalidState,
			"код сопряжения доступен не раньше, чем за 24 часа до начала работы")
	}

	code, err := generatePairingCode()
	if err != nil {
		return nil, "", err
	}
	expiresAt := time.Now().Add(s.pairingCodeTTL)

	expected := c.Status
	c.PairingCode = &code
	c.PairingCodeExpiresAt = &expiresAt
	c.PairingConfirmedByClient = false
	c.PairingConfirmedByDoer = false

	if err := s.contracts.UpdateGuarded(ctx, c, expected, nil); err != nil {
		return nil, "", mapContractConflict(err)
	}
	return c, code, nil
}

// ConfirmPairing — сторона подтверждает код сопряжения. Переход в
// in_progress происходит на втором подтверждении, не на первом.
func (s *ContractService) ConfirmPairing(ctx context.Context, contractID, userID uuid.UUID, code string) (*models.Contract, error) {
	c, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if c.PairingCode == nil {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "код сопряжения ещё не выпущен")
	}
	if c.PairingCodeExpiresAt != nil && time.Now().After(*c.PairingCodeExpiresAt) {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "срок действия кода сопряжения истёк")
	}
	if code != *c.PairingCode {
		return nil, apperror.New(apperror.ErrCodeValidation, "неверный код сопряжения")
	}

	switch userID {
	case c.ClientID:
		c.PairingConfirmedByClient = true
	case c.DoerID:
		c.PairingConfirmedByDoer = true
	default:
		return nil, apperror.ErrForbidden
	}

	expected := c.Status
	var outbox []models.OutboxMessage
	if c.Status == valueobject.ContractStatusAccepted && c.TermsMutuallyAccepted() && c.PairingConfirmed() {
		c.Status = valueobject.ContractStatusInProgress
		outbox = contractParticipantNotifications(c, "contract.in_progress")
	}

	if err := s.contracts.UpdateGuarded(ctx, c, expected, outbox); err != nil {
		return nil, mapContractConflict(err)
	}
	return c, nil
}

// ConfirmCompletion — сторона подтверждает завершение работы. Первое
// подтверждение переводит контракт в awaiting_confirmation, второе
// завершает его и ставит оплату в очередь на выплату.
func (s *ContractService) ConfirmCompletion(ctx context.Context, contractID, userID uuid.UUID) (*models.Contract, error) {
	c, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if c.Status != valueobject.ContractStatusInProgress && c.Status != valueobject.ContractStatusAwaitConfirm {
		return nil, apperror.New(apperror.ErrCodeInvalidState,
			"подтвердить завершение можно только по контракту в работе")
	}

	switch userID {
	case c.ClientID:
		c.ClientConfirmed = true
	case c.DoerID:
		c.DoerConfirmed = true
	default:
		return nil, apperror.ErrForbidden
	}

	expected := c.Status
	var outbox []models.OutboxMessage

	if c.BothConfirmedCompletion() {
		c.Status = valueobject.ContractStatusCompleted
		if c.EscrowStatus == models.EscrowStatusHeld {
			c.PaymentStatus = models.ContractPaymentPendingPayout
		} else {
			c.PaymentStatus = models.ContractPaymentEscrow
		}
		outbox = contractParticipantNotifications(c, "contract.completed")
	} else if c.Status == valueobject.ContractStatusInProgress {
		c.Status = valueobject.ContractStatusAwaitConfirm
		outbox = contractParticipantNotifications(c, "contract.awaiting_confirmation")
	}

	if err := s.contracts.UpdateGuarded(ctx, c, expected, outbox); err != nil {
		return nil, mapContractConflict(err)
	}

	if c.Status == valueobject.ContractStatusCompleted {
		logger.Financial("contract", string(expected), string(c.Status)).
			WithField("contract_id", c.ID).Info("контракт завершён обеими сторонами")
	}
	return c, nil
}

// CancelContract отменяет контракт до начала работы. Позже чем за 24 часа
// до старта отмена запрещена: расторжение идёт через спор.
func (s *ContractService) CancelContract(ctx context.Context, contractID, userID uuid.UUID, reason string) (*models.Contract, error) {
	c, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if userID != c.ClientID && userID != c.DoerID {
		return nil, apperror.ErrForbidden
	}
	if c.Status != valueobject.ContractStatusPending && c.Status != valueobject.ContractStatusAccepted {
		return nil, apperror.New(apperror.ErrCodeInvalidState,
			"отменить можно только контракт, не взятый в работу")
	}
	if time.Until(c.StartDate) < cancellationBoundary {
		return nil, apperror.New(apperror.ErrCodeInvalidState,
			"до начала работы меньше 24 часов: расторжение возможно только через спор")
	}

	expected := c.Status
	c.Status = valueobject.ContractStatusCancelled
	c.CancellationReason = &reason

	outbox := contractParticipantNotifications(c, "contract.cancelled")
	if err := s.contracts.UpdateGuarded(ctx, c, expected, outbox); err != nil {
		return nil, mapContractConflict(err)
	}
	return c, nil
}

// RequestExtension предлагает продление контракта. Контракт продлевается
// не более одного раза за время жизни.
func (s *ContractService) RequestExtension(ctx context.Context, contractID, userID uuid.UUID, newEndDate time.Time, extraAmount *float64) (*models.Contract, error) {
	c, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if userID != c.ClientID && userID != c.DoerID {
		return nil, apperror.ErrForbidden
	}
	if c.HasBeenExtended {
		return nil, apperror.New(apperror.ErrCodeConflict, "контракт уже продлевался")
	}
	if c.ExtensionRequested {
		return nil, apperror.New(apperror.ErrCodeConflict, "запрос на продление уже отправлен")
	}
	if c.Status != valueobject.ContractStatusInProgress {
		return nil, apperror.New(apperror.ErrCodeInvalidState,
			"продлить можно только контракт в работе")
	}
	if !newEndDate.After(c.EndDate) {
		return nil, apperror.New(apperror.ErrCodeValidation,
			"новая дата окончания должна быть позже текущей")
	}

	expected := c.Status
	c.ExtensionRequested = true
	c.ExtensionRequestedBy = &userID
	c.ExtensionNewEndDate = &newEndDate
	c.ExtensionAmount = extraAmount

	counterparty := c.DoerID
	if userID == c.DoerID {
		counterparty = c.ClientID
	}
	outbox := []models.OutboxMessage{
		notifyMessage(c.ID, counterparty, "contract.extension_requested", map[string]interface{}{
			"contract_id":  c.ID,
			"new_end_date": newEndDate,
		}),
	}
	if err := s.contracts.UpdateGuarded(ctx, c, expected, outbox); err != nil {
		return nil, mapContractConflict(err)
	}
	return c, nil
}

// RespondExtension — ответ на запрос продления. Отвечать может только
// сторона, не подававшая запрос, и только пока контракт не истёк по дате.
// Одобрение применяет новую дату окончания, доплату (если она была
// предложена) и навсегда закрывает возможность повторного продления.
func (s *ContractService) RespondExtension(ctx context.Context, contractID, userID uuid.UUID, approve bool) (*models.Contract, error) {
	c, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if userID != c.ClientID && userID != c.DoerID {
		return nil, apperror.ErrForbidden
	}
	if !c.ExtensionRequested {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "запроса на продление нет")
	}
	if c.ExtensionRequestedBy != nil && *c.ExtensionRequestedBy == userID {
		return nil, apperror.New(apperror.ErrCodeForbidden,
			"ответить на запрос продления может только вторая сторона")
	}
	if time.Now().After(c.EndDate) {
		return nil, apperror.New(apperror.ErrCodeInvalidState,
			"срок контракта уже истёк, продление недоступно")
	}

	expected := c.Status
	oldPrice := c.Price
	event := "contract.extension_rejected"
	if approve {
		if c.ExtensionNewEndDate != nil {
			c.EndDate = *c.ExtensionNewEndDate
		}
		if c.ExtensionAmount != nil && *c.ExtensionAmount > 0 {
			c.Price += *c.ExtensionAmount
			c.TotalPrice = c.Price + c.Commission
		}
		c.HasBeenExtended = true
		event = "contract.extension_approved"
	} else {
		c.ExtensionAmount = nil
	}
	c.ExtensionRequested = false
	c.ExtensionRequestedBy = nil
	c.ExtensionNewEndDate = nil

	outbox := contractParticipantNotifications(c, event)
	if err := s.contracts.UpdateGuarded(ctx, c, expected, outbox); err != nil {
		return nil, mapContractConflict(err)
	}

	if c.Price != oldPrice {
		pm := &models.PriceModification{
			ContractID: c.ID,
			OldPrice:   oldPrice,
			NewPrice:   c.Price,
			ActorID:    userID,
			Reason:     "доплата при продлении контракта",
		}
		if err := s.contracts.AddPriceModification(ctx, pm); err != nil {
			logger.Log.WithField("contract_id", c.ID).WithError(err).
				Warn("не удалось записать изменение цены при продлении")
		}
	}
	return c, nil
}

// ListPriceHistory возвращает журнал изменений цены контракта его сторонам.
func (s *ContractService) ListPriceHistory(ctx context.Context, contractID, userID uuid.UUID) ([]models.PriceModification, error) {
	c, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if userID != c.ClientID && userID != c.DoerID {
		return nil, apperror.ErrForbidden
	}
	return s.contracts.ListPriceModifications(ctx, contractID)
}

// generatePairingCode выпускает 8-символьный код из алфавита без
// неоднозначных символов.
func generatePairingCode() (string, error) {
	buf := make([]byte, pairingCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось сгенерировать код сопряжения")
	}
	for i := range buf {
		buf[i] = pairingCodeAlphabet[int(buf[i])%len(pairingCodeAlphabet)]
	}
	return string(buf), nil
}

// mapContractConflict переводит конфликт условного обновления контракта
// в доменную ошибку.
func mapContractConflict(err error) error {
	if errors.Is(err, repository.ErrStateConflict) {
		return apperror.New(apperror.ErrCodeConflict,
			"контракт уже изменён другим запросом, повторите после обновления")
	}
	return err
}
