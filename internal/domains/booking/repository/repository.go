package repository

//go:generate go run go.uber.org/mock/mockgen -source=./repository.go -destination=../mocks/repository_mock.go -package=mocks

import (
	"chalet/infras/otel"
	"chalet/infras/postgres"
	"chalet/internal/domains/booking/model"
	"chalet/shared"
	"chalet/shared/constant"
	gDto "chalet/shared/dto"
	gRepo "chalet/shared/repository"
	"chalet/shared/timezone"
	"context"
	"fmt"
)

type Booking interface {
	// Create inserts the record unless one already exists for its payment intent, and returns
	// the stored record either way.
	Create(ctx context.Context, record model.Record) (stored model.Record, created bool, err error)
	FindByPaymentIntent(ctx context.Context, paymentIntentID string) (model.Record, error)
	FindByID(ctx context.Context, id string) (model.Record, error)
	IsAlreadyProcessed(ctx context.Context, paymentIntentID string) (bool, error)
	// Transition moves the record in one conditional update. A record already in the target
	// state is returned unchanged with applied false; any other state yields a
	// *model.TransitionError alongside the current record.
	Transition(ctx context.Context, paymentIntentID string, transition model.Transition) (record model.Record, applied bool, err error)
	GetAll(ctx context.Context, params gDto.QueryParams, filter gDto.FilterGroup) ([]model.Record, error)
	Count(ctx context.Context, filter gDto.FilterGroup) (int, error)
}

type repositoryImpl struct {
	gRepo.Repository[model.Record]
	db   *postgres.Connection
	otel otel.Otel
}

func New(db *postgres.Connection, otel otel.Otel) Booking {
	return &repositoryImpl{
		Repository: gRepo.NewRepository[model.Record](model.EntityName, model.TableName, model.FieldID, db, otel),
		db:         db,
		otel:       otel,
	}
}

func (r *repositoryImpl) Create(ctx context.Context, record model.Record) (stored model.Record, created bool, err error) {
	ctx, scope := r.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+".booking.Create")
	defer scope.End()
	defer scope.TraceIfError(err)

	created, err = r.InsertOnConflictDoNothing(ctx, record, model.FieldPaymentIntentID)
	if err != nil {
		return stored, false, fmt.Errorf("failed to insert booking record: %w", err)
	}

	stored, err = r.FindByPaymentIntent(ctx, record.PaymentIntentID)
	if err != nil {
		return stored, created, err
	}

	return stored, created, nil
}

func (r *repositoryImpl) FindByPaymentIntent(ctx context.Context, paymentIntentID string) (model.Record, error) {
	record, err := r.Get(ctx, filterByPaymentIntent(paymentIntentID))
	if err != nil {
		return record, fmt.Errorf("failed to find booking by payment intent: %w", err)
	}

	return record, nil
}

func (r *repositoryImpl) FindByID(ctx context.Context, id string) (model.Record, error) {
	record, err := r.Get(ctx, shared.FilterByID(id, model.FieldID, model.TableName))
	if err != nil {
		return record, fmt.Errorf("failed to find booking: %w", err)
	}

	return record, nil
}

func (r *repositoryImpl) IsAlreadyProcessed(ctx context.Context, paymentIntentID string) (bool, error) {
	record, err := r.FindByPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return false, err
	}

	return record.IsAlreadyProcessed(), nil
}

func (r *repositoryImpl) Transition(ctx context.Context, paymentIntentID string, transition model.Transition) (record model.Record, applied bool, err error) {
	ctx, scope := r.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+".booking.Transition")
	defer scope.End()
	defer scope.TraceIfError(err)

	scope.SetAttributes(map[string]any{"payment_intent_id": paymentIntentID, "to": string(transition.To)})

	record, applied, err = r.UpdateReturning(ctx, transition.Changes(timezone.Now()), TransitionFilter(paymentIntentID, transition.To))
	if err != nil {
		return record, false, fmt.Errorf("failed to transition booking record: %w", err)
	}

	if applied {
		return record, true, nil
	}

	record, err = r.FindByPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return record, false, err
	}

	if !record.Exists() {
		return record, false, fmt.Errorf("booking record for %s: %w", paymentIntentID, gRepo.ErrNotFound)
	}

	if record.BookingStatus == transition.To {
		return record, false, nil
	}

	return record, false, &model.TransitionError{From: record.BookingStatus, To: transition.To}
}

func filterByPaymentIntent(paymentIntentID string) gDto.FilterGroup {
	return shared.FilterByID(paymentIntentID, model.FieldPaymentIntentID, model.TableName)
}

// TransitionFilter matches the record only while it sits in a state that may move to to.
func TransitionFilter(paymentIntentID string, to model.BookingStatus) gDto.FilterGroup {
	sources := model.SourcesOf(to)

	values := make([]string, 0, len(sources))
	for _, source := range sources {
		values = append(values, string(source))
	}

	return gDto.FilterGroup{
		Filters: []any{
			gDto.Filter{
				Field:    model.FieldPaymentIntentID,
				Value:    paymentIntentID,
				Operator: gDto.FilterOperatorEq,
				Table:    model.TableName,
			},
			gDto.Filter{
				Field:    model.FieldBookingStatus,
				Value:    values,
				Operator: gDto.FilterOperatorIn,
				Table:    model.TableName,
				ArgName:  "from_status",
			},
		},
		Operator: gDto.FilterGroupOperatorAnd,
	}
}
