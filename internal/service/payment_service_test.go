package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/workdeal-backend/internal/domain/valueobject"
	"github.com/ignatzorin/workdeal-backend/internal/models"
	"github.com/ignatzorin/workdeal-backend/internal/pkg/apperror"
	"github.com/ignatzorin/workdeal-backend/internal/repository"
)

func TestCreatePayment_Validation(t *testing.T) {
	ctx := context.Background()
	payments := new(mockPaymentStore)
	svc := NewPaymentService(payments, new(mockContractStore), new(mockJobStore))

	_, err := svc.CreatePayment(ctx, CreatePaymentInput{
		PayerID: uuid.New(),
		Amount:  10000,
		Type:    "unknown_type",
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "неизвестный тип платежа")

	_, err = svc.CreatePayment(ctx, CreatePaymentInput{
		PayerID: uuid.New(),
		Amount:  -100,
		Type:    models.PaymentTypeMembership,
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "сумма платежа должна быть положительной")

	_, err = svc.CreatePayment(ctx, CreatePaymentInput{
		PayerID:    uuid.New(),
		Amount:     10000,
		Commission: 20000,
		Type:       models.PaymentTypeMembership,
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "комиссия не может превышать сумму платежа")

	payments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreatePayment_EscrowFlagByType(t *testing.T) {
	ctx := context.Background()
	payments := new(mockPaymentStore)
	svc := NewPaymentService(payments, new(mockContractStore), new(mockJobStore))

	contractID := uuid.New()
	payments.On("Create", ctx, mock.MatchedBy(func(p *models.Payment) bool {
		return p.IsEscrow && p.Status == valueobject.PaymentStatusPending && p.Currency == valueobject.DefaultCurrency
	})).Return(nil)

	p, err := svc.CreatePayment(ctx, CreatePaymentInput{
		PayerID:    uuid.New(),
		ContractID: &contractID,
		Amount:     54000,
		Type:       models.PaymentTypeContract,
		Commission: 4000,
	})

	assert.NoError(t, err)
	assert.True(t, p.IsEscrow)
	payments.AssertExpectations(t)
}

func TestSubmitProof_ForbiddenForNonPayer(t *testing.T) {
	ctx := context.Background()
	payments := new(mockPaymentStore)
	svc := NewPaymentService(payments, new(mockContractStore), new(mockJobStore))

	paymentID := uuid.New()
	payments.On("GetByID", ctx, paymentID).Return(&models.Payment{
		ID:      paymentID,
		PayerID: uuid.New(),
		Status:  valueobject.PaymentStatusPending,
	}, nil)

	_, err := svc.SubmitProof(ctx, paymentID, uuid.New(), "proofs/x.jpg", nil)

	assert.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeForbidden))
	payments.AssertNotCalled(t, "CreateProof", mock.Anything, mock.Anything)
}

func TestSubmitProof_DuplicatePendingProof(t *testing.T) {
	ctx := context.Background()
	payments := new(mockPaymentStore)
	svc := NewPaymentService(payments, new(mockContractStore), new(mockJobStore))

	paymentID := uuid.New()
	payerID := uuid.New()
	payments.On("GetByID", ctx, paymentID).Return(&models.Payment{
		ID:      paymentID,
		PayerID: payerID,
		Status:  valueobject.PaymentStatusPendingVerify,
	}, nil)
	payments.On("CreateProof", ctx, mock.Anything).Return(repository.ErrDuplicatePendingProof)

	_, err := svc.SubmitProof(ctx, paymentID, payerID, "proofs/x.jpg", nil)

	assert.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeConflict))
	assert.Contains(t, err.Error(), "уже есть чек на проверке")
}

func TestSubmitProof_MovesPendingToVerification(t *testing.T) {
	ctx := context.Background()
	payments := new(mockPaymentStore)
	svc := NewPaymentService(payments, new(mockContractStore), new(mockJobStore))

	paymentID := uuid.New()
	payerID := uuid.New()
	payments.On("GetByID", ctx, paymentID).Return(&models.Payment{
		ID:      paymentID,
		PayerID: payerID,
		Status:  valueobject.PaymentStatusPending,
	}, nil)
	payments.On("CreateProof", ctx, mock.MatchedBy(func(proof *models.PaymentProof) bool {
		return proof.PaymentID == paymentID && proof.FilePath == "proofs/receipt.jpg"
	})).Return(nil)
	payments.On("Transition", ctx, mock.MatchedBy(func(tr repository.PaymentTransition) bool {
		return tr.From == valueobject.PaymentStatusPending && tr.To == valueobject.PaymentStatusPendingVerify
	})).Return(&models.Payment{ID: paymentID, Status: valueobject.PaymentStatusPendingVerify}, nil)

	updated, err := svc.SubmitProof(ctx, paymentID, payerID, "proofs/receipt.jpg", nil)

	assert.NoError(t, err)
	assert.Equal(t, valueobject.PaymentStatusPendingVerify, updated.Status)
	payments.AssertExpectations(t)
}

func TestApproveProof_Idempotent(t *testing.T) {
	ctx := context.Background()
	payments := new(mockPaymentStore)
	svc := NewPaymentService(payments, new(mockContractStore), new(mockJobStore))

	paymentID := uuid.New()
	payments.On("GetByID", ctx, paymentID).Return(&models.Payment{
		ID:     paymentID,
		Status: valueobject.PaymentStatusVerified,
	}, nil)

	_, err := svc.ApproveProof(ctx, paymentID, uuid.New(), nil)

	assert.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeAlreadyProcessed))
	payments.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything)
}

func TestApproveProof_ConcurrentConflict(t *testing.T) {
	ctx := context.Background()
	payments := new(mockPaymentStore)
	svc := NewPaymentService(payments, new(mockContractStore), new(mockJobStore))

	paymentID := uuid.New()
	payments.On("GetByID", ctx, paymentID).Return(&models.Payment{
		ID:     paymentID,
		Status: valueobject.PaymentStatusPendingVerify,
	}, nil)
	payments.On("Transition", ctx, mock.Anything).Return(nil, repository.ErrStateConflict)

	_, err := svc.ApproveProof(ctx, paymentID, uuid.New(), nil)

	assert.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeAlreadyProcessed))
	assert.Contains(t, err.Error(), "уже обработан другим запросом")
}

func TestRejectPayment_MissingReason(t *testing.T) {
	ctx := context.Background()
	payments := new(mockPaymentStore)
	svc := NewPaymentService(payments, new(mockContractStore), new(mockJobStore))

	_, err := svc.RejectPayment(ctx, uuid.New(), uuid.New(), "", nil)

	assert.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeMissingReason))
	payments.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestVerifyEscrow_WrongType(t *testing.T) {
	ctx := context.Background()
	payments := new(mockPaymentStore)
	svc := NewPaymentService(payments, new(mockContractStore), new(mockJobStore))

	paymentID := uuid.New()
	payments.On("GetByID", ctx, paymentID).Return(&models.Payment{
		ID:     paymentID,
		Type:   models.PaymentTypeMembership,
		Status: valueobject.PaymentStatusVerified,
	}, nil)

	_, err := svc.VerifyEscrow(ctx, paymentID, uuid.New(), nil)

	assert.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeWrongType))
	payments.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything)
}

func TestVerifyEscrow_OpensContractWork(t *testing.T) {
	ctx := context.Background()
	payments := new(mockPaymentStore)
	contracts := new(mockContractStore)
	jobs := new(mockJobStore)
	svc := NewPaymentService(payments, contracts, jobs)

	paymentID := uuid.New()
	contractID := uuid.New()
	jobID := uuid.New()
	payments.On("GetByID", ctx, paymentID).Return(&models.Payment{
		ID:         paymentID,
		PayerID:    uuid.New(),
		ContractID: &contractID,
		Type:       models.PaymentTypeContract,
		Status:     valueobject.PaymentStatusVerified,
	}, nil)
	payments.On("Transition", ctx, mock.MatchedBy(func(tr repository.PaymentTransition) bool {
		return tr.To == valueobject.PaymentStatusHeldEscrow && tr.SetEscrowVerifiedAt
	})).Return(&models.Payment{ID: paymentID, Status: valueobject.PaymentStatusHeldEscrow}, nil)

	// Условия уже приняты обеими сторонами: escrow открывает работу.
	contracts.On("GetByID", ctx, contractID).Return(&models.Contract{
		ID:                    contractID,
		JobID:                 jobID,
		Status:                valueobject.ContractStatusAccepted,
		TermsAcceptedByClient: true,
		TermsAcceptedByDoer:   true,
	}, nil)
	contracts.On("UpdateGuarded", ctx, mock.MatchedBy(func(c *models.Contract) bool {
		return c.Status == valueobject.ContractStatusInProgress &&
			c.EscrowStatus == models.EscrowStatusHeld &&
			c.PaymentStatus == models.ContractPaymentEscrow
	}), valueobject.ContractStatusAccepted, mock.Anything).Return(nil)
	jobs.On("GetByID", ctx, jobID).Return(&models.Job{
		ID:            jobID,
		Price:         100000,
		OriginalPrice: 100000,
		Status:        valueobject.JobStatusInProgress,
	}, nil)

	updated, err := svc.VerifyEscrow(ctx, paymentID, uuid.New(), nil)

	assert.NoError(t, err)
	assert.Equal(t, valueobject.PaymentStatusHeldEscrow, updated.Status)
	contracts.AssertExpectations(t)
}

func TestVerifyEscrow_RaisesJobPaidMaximum(t *testing.T) {
	ctx := context.Background()
	payments := new(mockPaymentStore)
	contracts := new(mockContractStore)
	jobs := new(mockJobStore)
	svc := NewPaymentService(payments, contracts, jobs)

	paymentID := uuid.New()
	contractID := uuid.New()
	jobID := uuid.New()
	payments.On("GetByID", ctx, paymentID).Return(&models.Payment{
		ID:         paymentID,
		PayerID:    uuid.New(),
		ContractID: &contractID,
		Type:       models.PaymentTypeContract,
		Status:     valueobject.PaymentStatusVerified,
	}, nil)
	payments.On("Transition", ctx, mock.Anything).
		Return(&models.Payment{ID: paymentID, Status: valueobject.PaymentStatusHeldEscrow}, nil)
	contracts.On("GetByID", ctx, contractID).Return(&models.Contract{
		ID:     contractID,
		JobID:  jobID,
		Status: valueobject.ContractStatusAccepted,
	}, nil)
	contracts.On("UpdateGuarded", ctx, mock.Anything, valueobject.ContractStatusAccepted, mock.Anything).Return(nil)

	// До зачисления escrow оплаченный максимум равен нулю: повышение цены
	// тарифицировалось бы на всю новую цену, а не на разницу.
	jobs.On("GetByID", ctx, jobID).Return(&models.Job{
		ID:            jobID,
		Price:         100000,
		OriginalPrice: 0,
		Status:        valueobject.JobStatusOpen,
	}, nil)
	jobs.On("UpdateGuarded", ctx, mock.MatchedBy(func(j *models.Job) bool {
		return j.OriginalPrice == 100000
	}), valueobject.JobStatusOpen, mock.Anything).Return(nil)

	_, err := svc.VerifyEscrow(ctx, paymentID, uuid.New(), nil)

	assert.NoError(t, err)
	jobs.AssertExpectations(t)
}

func TestVerifyEscrow_ContractFailureDoesNotFailPayment(t *testing.T) {
	ctx := context.Background()
	payments := new(mockPaymentStore)
	contracts := new(mockContractStore)
	svc := NewPaymentService(payments, contracts, new(mockJobStore))

	paymentID := uuid.New()
	contractID := uuid.New()
	payments.On("GetByID", ctx, paymentID).Return(&models.Payment{
		ID:         paymentID,
		ContractID: &contractID,
		Type:       models.PaymentTypeEscrowDeposit,
		Status:     valueobject.PaymentStatusVerified,
	}, nil)
	payments.On("Transition", ctx, mock.Anything).
		Return(&models.Payment{ID: paymentID, Status: valueobject.PaymentStatusHeldEscrow}, nil)
	contracts.On("GetByID", ctx, contractID).Return(nil, apperror.ErrContractNotFound)

	updated, err := svc.VerifyEscrow(ctx, paymentID, uuid.New(), nil)

	assert.NoError(t, err)
	assert.Equal(t, valueobject.PaymentStatusHeldEscrow, updated.Status)
}

func TestConfirmForPayout_OnlyFromEscrow(t *testing.T) {
	ctx := context.Background()
	payments := new(mockPaymentStore)
	svc := NewPaymentService(payments, new(mockContractStore), new(mockJobStore))

	paymentID := uuid.New()
	payments.On("GetByID", ctx, paymentID).Return(&models.Payment{
		ID:     paymentID,
		Status: valueobject.PaymentStatusVerified,
	}, nil)

	_, err := svc.ConfirmForPayout(ctx, paymentID, uuid.New(), nil)

	assert.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeInvalidState))
}

func TestCancelReject_OnlyRejectedPayment(t *testing.T) {
	ctx := context.Background()
	payments := new(mockPaymentStore)
	svc := NewPaymentService(payments, new(mockContractStore), new(mockJobStore))

	paymentID := uuid.New()
	payments.On("GetByID", ctx, paymentID).Return(&models.Payment{
		ID:     paymentID,
		Status: valueobject.PaymentStatusPendingVerify,
	}, nil)

	_, err := svc.CancelReject(ctx, paymentID, uuid.New(), nil)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "отменить можно только отклонённый платёж")
}

func TestCancelReject_RestoresProofToPending(t *testing.T) {
	ctx := context.Background()
	payments := new(mockPaymentStore)
	svc := NewPaymentService(payments, new(mockContractStore), new(mockJobStore))

	paymentID := uuid.New()
	payments.On("GetByID", ctx, paymentID).Return(&models.Payment{
		ID:      paymentID,
		PayerID: uuid.New(),
		Status:  valueobject.PaymentStatusRejected,
	}, nil)
	payments.On("Transition", ctx, mock.MatchedBy(func(tr repository.PaymentTransition) bool {
		return tr.From == valueobject.PaymentStatusRejected &&
			tr.To == valueobject.PaymentStatusPendingVerify &&
			tr.ProofFromStatus != nil && *tr.ProofFromStatus == models.ProofStatusRejected &&
			tr.ProofToStatus != nil && *tr.ProofToStatus == models.ProofStatusPending
	})).Return(&models.Payment{ID: paymentID, Status: valueobject.PaymentStatusPendingVerify}, nil)

	updated, err := svc.CancelReject(ctx, paymentID, uuid.New(), nil)

	assert.NoError(t, err)
	assert.Equal(t, valueobject.PaymentStatusPendingVerify, updated.Status)
	payments.AssertExpectations(t)
}

func TestHandleProviderConfirmation_IdempotentForSameTx(t *testing.T) {
	ctx := context.Background()
	payments := new(mockPaymentStore)
	svc := NewPaymentService(payments, new(mockContractStore), new(mockJobStore))

	paymentID := uuid.New()
	txID := "tx-12345"
	payments.On("GetByID", ctx, paymentID).Return(&models.Payment{
		ID:           paymentID,
		Status:       valueobject.PaymentStatusVerified,
		ProviderTxID: &txID,
	}, nil)

	p, err := svc.HandleProviderConfirmation(ctx, paymentID, txID)

	assert.NoError(t, err)
	assert.Equal(t, valueobject.PaymentStatusVerified, p.Status)
	payments.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything)
}

func TestHandleProviderConfirmation_BindsTransaction(t *testing.T) {
	ctx := context.Background()
	payments := new(mockPaymentStore)
	svc := NewPaymentService(payments, new(mockContractStore), new(mockJobStore))

	paymentID := uuid.New()
	payments.On("GetByID", ctx, paymentID).Return(&models.Payment{
		ID:      paymentID,
		PayerID: uuid.New(),
		Status:  valueobject.PaymentStatusPending,
	}, nil)
	payments.On("Transition", ctx, mock.MatchedBy(func(tr repository.PaymentTransition) bool {
		return tr.To == valueobject.PaymentStatusVerified &&
			tr.SetApprovedAt &&
			tr.ProviderTxID != nil && *tr.ProviderTxID == "tx-777"
	})).Return(&models.Payment{ID: paymentID, Status: valueobject.PaymentStatusVerified}, nil)

	updated, err := svc.HandleProviderConfirmation(ctx, paymentID, "tx-777")

	assert.NoError(t, err)
	assert.Equal(t, valueobject.PaymentStatusVerified, updated.Status)
	payments.AssertExpectations(t)
}

func TestGetPendingProof_Found(t *testing.T) {
	ctx := context.Background()
	payments := new(mockPaymentStore)
	svc := NewPaymentService(payments, new(mockContractStore), new(mockJobStore))

	paymentID := uuid.New()
	payments.On("GetPendingProof", ctx, paymentID).Return(&models.PaymentProof{
		PaymentID: paymentID,
		FilePath:  "proofs/receipt.png",
		Status:    "pending",
	}, nil)

	proof, err := svc.GetPendingProof(ctx, paymentID)

	assert.NoError(t, err)
	assert.Equal(t, "proofs/receipt.png", proof.FilePath)
}

func TestGetPendingProof_NoneAwaitingReview(t *testing.T) {
	ctx := context.Background()
	payments := new(mockPaymentStore)
	svc := NewPaymentService(payments, new(mockContractStore), new(mockJobStore))

	paymentID := uuid.New()
	payments.On("GetPendingProof", ctx, paymentID).Return(nil, nil)

	_, err := svc.GetPendingProof(ctx, paymentID)

	assert.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeNotFound))
}

func TestRefundableAmount_CommissionNeverRefunded(t *testing.T) {
	p := &models.Payment{Amount: 50000, Commission: 5000}
	assert.Equal(t, float64(45000), p.RefundableAmount())

	p.RefundedAmount = 45000
	assert.Equal(t, float64(0), p.RefundableAmount())
}
