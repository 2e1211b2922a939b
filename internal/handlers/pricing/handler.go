package pricing

import (
	"chalet/infras/otel"
	calendarService "chalet/internal/domains/calendar/service"
	"chalet/internal/domains/pricing/model/dto"
	pricingService "chalet/internal/domains/pricing/service"
	"chalet/shared/constant"
	"chalet/shared/failure"
	"chalet/shared/validator"
	"chalet/transport/http/response"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const (
	queryCheckIn  = "check_in"
	queryCheckOut = "check_out"
	queryAdults   = "adults"
	queryChildren = "children"
	queryInfants  = "infants"
)

type Handler struct {
	service  pricingService.Pricing
	calendar calendarService.Calendar
	otel     otel.Otel
}

func New(service pricingService.Pricing, calendar calendarService.Calendar, otel otel.Otel) Handler {
	return Handler{
		service:  service,
		calendar: calendar,
		otel:     otel,
	}
}

func (handler *Handler) Router(router chi.Router) {
	router.Get("/properties/{propertyID}/quote", handler.Quote)
}

// AdminRouter mounts the operator routes; the caller guards them.
func (handler *Handler) AdminRouter(router chi.Router) {
	router.Route("/properties", func(routerGroup chi.Router) {
		routerGroup.Delete("/cache", handler.InvalidateAllProperties)
		routerGroup.Delete("/{propertyID}/cache", handler.InvalidateProperty)
	})
}

// Quote prices and validates a stay.
// @Summary Quote a stay
// @Description Price a stay night by night and check it against the property booking rules. Totals are omitted when no night has a real rate.
// @Tags Pricing
// @Produce json
// @Param propertyID path string true "Property ID"
// @Param check_in query string true "Check-in day (YYYY-MM-DD)"
// @Param check_out query string true "Check-out day (YYYY-MM-DD)"
// @Param adults query int false "Adults"
// @Param children query int false "Children"
// @Param infants query int false "Infants"
// @Success 200 {object} response.Data[dto.AssessmentResponse]
// @Failure 400 {object} response.Error
// @Failure 503 {object} response.Error
// @Router /v1/properties/{propertyID}/quote [get]
func (handler *Handler) Quote(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".Quote")
	defer scope.End()

	req, err := quoteRequest(chi.URLParam(request, constant.RequestParamPropertyID), request.URL.Query())
	if err != nil {
		scope.TraceError(err)
		response.WithError(writer, err)

		return
	}

	if err := validator.ValidateStruct(&req); err != nil {
		scope.TraceError(err)
		response.WithError(writer, err)

		return
	}

	stay, err := req.ToStay()
	if err != nil {
		scope.TraceError(err)
		response.WithError(writer, failure.BadRequest(err))

		return
	}

	assessment, err := handler.service.Assess(ctx, stay)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Str("property_id", req.PropertyID).Msg("failed to quote stay")

		response.WithError(writer, failure.ServiceUnavailable(constant.ResponseErrorTryAgainLater))

		return
	}

	res := dto.AssessmentResponse{}
	res.FromModel(assessment)

	response.WithJSON(writer, http.StatusOK, res)
}

// InvalidateProperty drops one cached property.
// @Summary Invalidate a cached property
// @Tags Admin
// @Produce json
// @Param propertyID path string true "Property ID"
// @Success 200 {object} response.Message
// @Failure 401 {object} response.Error
// @Failure 403 {object} response.Error
// @Router /v1/admin/properties/{propertyID}/cache [delete]
// @Security ApiKeyAuth
func (handler *Handler) InvalidateProperty(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".InvalidateProperty")
	defer scope.End()

	propertyID := chi.URLParam(request, constant.RequestParamPropertyID)

	if err := handler.calendar.InvalidateProperty(ctx, propertyID); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Str("property_id", propertyID).Msg("failed to invalidate property cache")

		response.WithError(writer, err)

		return
	}

	response.WithMessage(writer, http.StatusOK, "Property cache invalidated")
}

// InvalidateAllProperties drops every cached property.
// @Summary Invalidate all cached properties
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Message
// @Failure 401 {object} response.Error
// @Failure 403 {object} response.Error
// @Router /v1/admin/properties/cache [delete]
// @Security ApiKeyAuth
func (handler *Handler) InvalidateAllProperties(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".InvalidateAllProperties")
	defer scope.End()

	if err := handler.calendar.InvalidateAllProperties(ctx); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to invalidate property cache")

		response.WithError(writer, err)

		return
	}

	response.WithMessage(writer, http.StatusOK, "Property cache invalidated")
}

func quoteRequest(propertyID string, query url.Values) (dto.QuoteRequest, error) {
	req := dto.QuoteRequest{
		PropertyID: propertyID,
		CheckIn:    query.Get(queryCheckIn),
		CheckOut:   query.Get(queryCheckOut),
	}

	counts := []struct {
		name  string
		value *int
	}{
		{name: queryAdults, value: &req.Adults},
		{name: queryChildren, value: &req.Children},
		{name: queryInfants, value: &req.Infants},
	}

	for _, count := range counts {
		raw := query.Get(count.name)
		if raw == "" {
			continue
		}

		value, err := strconv.Atoi(raw)
		if err != nil {
			return req, failure.BadRequestFromString(fmt.Sprintf("%s must be a whole number", count.name)) // nolint:wrapcheck
		}

		*count.value = value
	}

	return req, nil
}
