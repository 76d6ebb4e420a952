package api

import (
	"net/http"
	"time"

	models "PriceMesh/internal/domain/models"
	drepo "PriceMesh/internal/domain/repository"
	"PriceMesh/internal/oracle"
	"PriceMesh/internal/service/ratelimit"
	"PriceMesh/internal/usecase"
	"PriceMesh/pkg/config"
	xhttp "PriceMesh/pkg/http"
	xlogger "PriceMesh/pkg/logger"
	"PriceMesh/pkg/util"

	"github.com/labstack/echo/v4"
)

const apiKeyHeader = "X-API-Key"

// OracleEchoHandler implements Echo-based HTTP handlers following Clean Architecture.
type OracleEchoHandler struct {
	logger *xlogger.Logger
	intake *usecase.SubmissionIntake
	audit  drepo.AuditStore // nil when the backend is kafka
	cache  drepo.PriceCache // nil when caching is disabled
	rl     *ratelimit.ReporterLimiter

	reporterKeys map[string]string
	adminKeys    map[string]struct{}
	priceTTL     time.Duration
}

func NewOracleEchoHandler(logger *xlogger.Logger, intake *usecase.SubmissionIntake, audit drepo.AuditStore, cache drepo.PriceCache, cfg *config.Config) *OracleEchoHandler {
	admins := make(map[string]struct{}, len(cfg.Oracle.AdminKeys))
	for _, k := range cfg.Oracle.AdminKeys {
		admins[k] = struct{}{}
	}
	return &OracleEchoHandler{
		logger:       logger,
		intake:       intake.WithLane("http"),
		audit:        audit,
		cache:        cache,
		rl:           ratelimit.NewReporterLimiter(float64(cfg.Oracle.SubmitRPS), cfg.Oracle.SubmitRPS+1),
		reporterKeys: cfg.Oracle.ReporterKeys,
		adminKeys:    admins,
		priceTTL:     cfg.Redis.PriceTTL,
	}
}

func (h *OracleEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api")
	g.POST("/submissions", h.Submit)
	g.GET("/prices/:asset/weighted", h.WeightedPrice)
	g.GET("/prices/:asset/normalized", h.NormalizedPrice)
	g.POST("/slippage/check", h.CheckSlippage)

	admin := g.Group("/admin", h.requireAdmin)
	admin.POST("/providers", h.SetProvider)
	admin.PUT("/config", h.UpdateConfig)
	admin.GET("/config", h.GetConfig)

	g.GET("/submissions", h.AuditQuery, h.requireAdmin)
}

func (h *OracleEchoHandler) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Request().Header.Get(apiKeyHeader)
		if _, ok := h.adminKeys[key]; !ok {
			return xhttp.UnauthorizedResponse(c, "admin API key required")
		}
		return next(c)
	}
}

func (h *OracleEchoHandler) Submit(c echo.Context) error {
	reporter, ok := h.reporterKeys[c.Request().Header.Get(apiKeyHeader)]
	if !ok {
		return xhttp.UnauthorizedResponse(c, "reporter API key required")
	}
	if !h.rl.Allow(reporter) {
		h.logger.Warn("submit rate_limited", xlogger.String("reporter", reporter))
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "submission rate exceeded")
	}

	req := &models.SubmitRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ts := req.Timestamp
	if ts == 0 {
		ts = time.Now().Unix()
	}

	sub := &models.Submission{
		Reporter:  reporter,
		Asset:     req.Asset,
		Price:     req.Price,
		Volume:    req.Volume,
		Timestamp: ts,
		Proof:     req.Proof,
	}
	if err := h.intake.Process(c.Request().Context(), sub); err != nil {
		return xhttp.AppErrorResponse(c, oracleAppError(err))
	}
	return xhttp.CreatedResponse(c, &models.SubmitResponse{Accepted: true})
}

func (h *OracleEchoHandler) WeightedPrice(c echo.Context) error {
	return h.price(c, "weighted", h.intake.Engine().WeightedPrice)
}

func (h *OracleEchoHandler) NormalizedPrice(c echo.Context) error {
	return h.price(c, "normalized", h.intake.Engine().NormalizedPrice)
}

func (h *OracleEchoHandler) price(c echo.Context, kind string, compute func(string) (uint64, error)) error {
	req := &models.PriceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx := c.Request().Context()
	key := kind + ":" + req.Asset
	if h.cache != nil {
		if price, ok := h.cache.GetPrice(ctx, key); ok {
			return xhttp.SuccessResponse(c, &models.PriceResponse{
				Asset:   req.Asset,
				Price:   price,
				Sources: h.intake.Engine().ValidSourceCount(req.Asset),
				At:      time.Now().Unix(),
			})
		}
	}

	price, err := compute(req.Asset)
	if err != nil {
		h.logger.Warn("price read failed",
			xlogger.String("kind", kind),
			xlogger.String("asset", req.Asset),
			xlogger.Error(err))
		return xhttp.AppErrorResponse(c, oracleAppError(err))
	}
	if h.cache != nil {
		h.cache.SetPrice(ctx, key, price, h.priceTTL)
	}
	return xhttp.SuccessResponse(c, &models.PriceResponse{
		Asset:   req.Asset,
		Price:   price,
		Sources: h.intake.Engine().ValidSourceCount(req.Asset),
		At:      time.Now().Unix(),
	})
}

func (h *OracleEchoHandler) CheckSlippage(c echo.Context) error {
	req := &models.SlippageCheckRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	eng := h.intake.Engine()
	return xhttp.SuccessResponse(c, &models.SlippageCheckResponse{
		Price:     req.Price,
		Expected:  req.Expected,
		Tolerance: eng.Params().SlippageTolerance,
		Within:    eng.WithinSlippage(req.Price, req.Expected),
	})
}

func (h *OracleEchoHandler) SetProvider(c echo.Context) error {
	req := &models.ProviderRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	h.intake.Engine().SetAuthorizedProvider(req.Reporter, req.Authorized)
	h.logger.Info("provider updated",
		xlogger.String("reporter", req.Reporter),
		xlogger.Bool("authorized", req.Authorized))
	return xhttp.SuccessResponse(c, req)
}

func (h *OracleEchoHandler) UpdateConfig(c echo.Context) error {
	req := &models.ConfigUpdateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	h.intake.Engine().SetParams(models.OracleParams{
		ValidityPeriod:     req.ValidityPeriod,
		MaxPriceDeviation:  req.MaxPriceDeviation,
		MinRequiredSources: req.MinRequiredSources,
		MinVolumeThreshold: req.MinVolumeThreshold,
		SlippageTolerance:  req.SlippageTolerance,
	})
	h.logger.Info("oracle params updated",
		xlogger.Int64("validity_period", req.ValidityPeriod),
		xlogger.Int("min_required_sources", req.MinRequiredSources))
	return xhttp.SuccessResponse(c, h.intake.Engine().Params())
}

func (h *OracleEchoHandler) GetConfig(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.intake.Engine().Params())
}

func (h *OracleEchoHandler) AuditQuery(c echo.Context) error {
	if h.audit == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("audit queries need the clickhouse backend"))
	}
	req := &models.AuditQueryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	now := time.Now()
	from := util.ParseTimeDefault(req.From, now.Add(-24*time.Hour))
	to := util.ParseTimeDefault(req.To, now)

	rows, err := h.audit.Query(c.Request().Context(), req.Asset, from, to, req.Limit)
	if err != nil {
		h.logger.Error("audit query failed", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *OracleEchoHandler) Health(c echo.Context) error {
	status := map[string]interface{}{"status": "ok"}
	if h.audit != nil {
		if err := h.audit.Health(c.Request().Context()); err != nil {
			status["status"] = "degraded"
			status["audit"] = err.Error()
		}
	}
	return xhttp.SuccessResponse(c, status)
}

// oracleAppError maps engine rejections to HTTP-level application errors.
func oracleAppError(err error) error {
	code := oracle.ErrorCode(err)
	switch code {
	case "NOT_AUTHORIZED":
		return xhttp.NewAppError(code, "", err.Error(), http.StatusForbidden).WithError(err)
	case "INVALID_CHAIN", "INVALID_PRICE":
		return xhttp.NewAppError(code, "", err.Error(), http.StatusBadRequest).WithError(err)
	case "HIGH_DEVIATION", "BELOW_MIN_VOLUME":
		return xhttp.NewAppError(code, "", err.Error(), http.StatusUnprocessableEntity).WithError(err)
	case "INSUFFICIENT_SOURCES", "STALE_PRICE":
		return xhttp.NewAppError(code, "", err.Error(), http.StatusConflict).WithError(err)
	case "INVALID_WEIGHT":
		return xhttp.NewAppError(code, "", err.Error(), http.StatusInternalServerError).WithError(err)
	default:
		return err
	}
}
