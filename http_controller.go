package runboard

import (
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// RouteRegistrar captures the router methods used by the controllers.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Put(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Patch(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// LifecycleController exposes the leaderboard and category lifecycle over
// JSON endpoints.
type LifecycleController struct {
	Leaderboards *Engine[*Leaderboard]
	Categories   *Engine[*Category]
	Logger       Logger
}

// LifecycleControllerOption configures the controller.
type LifecycleControllerOption func(*LifecycleController) *LifecycleController

// WithLifecycleEngines sets both engines at once.
func WithLifecycleEngines(leaderboards *Engine[*Leaderboard], categories *Engine[*Category]) LifecycleControllerOption {
	return func(c *LifecycleController) *LifecycleController {
		c.Leaderboards = leaderboards
		c.Categories = categories
		return c
	}
}

// WithLifecycleLogger overrides the controller logger.
func WithLifecycleLogger(logger Logger) LifecycleControllerOption {
	return func(c *LifecycleController) *LifecycleController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// NewLifecycleController creates the controller, panicking on missing engines.
func NewLifecycleController(opts ...LifecycleControllerOption) *LifecycleController {
	c := &LifecycleController{
		Logger: defLogger{},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Leaderboards == nil || c.Categories == nil {
		panic("Missing lifecycle engines in lifecycle controller...")
	}

	return c
}

// RegisterLifecycleRoutes mounts the lifecycle endpoints.
func RegisterLifecycleRoutes(app RouteRegistrar, opts ...LifecycleControllerOption) *LifecycleController {
	controller := NewLifecycleController(opts...)

	app.Post("/leaderboards", controller.LeaderboardCreate)
	app.Get("/leaderboards", controller.LeaderboardList)
	app.Get("/leaderboard/:id", controller.LeaderboardShow)
	app.Patch("/leaderboard/:id", controller.LeaderboardUpdate)
	app.Delete("/leaderboard/:id", controller.LeaderboardDelete)
	app.Put("/leaderboard/:id/restore", controller.LeaderboardRestore)

	app.Post("/leaderboard/:id/categories", controller.CategoryCreate)
	app.Get("/leaderboard/:id/categories", controller.CategoryList)
	app.Patch("/category/:id", controller.CategoryUpdate)
	app.Delete("/category/:id", controller.CategoryDelete)
	app.Put("/category/:id/restore", controller.CategoryRestore)

	return controller
}

// LeaderboardCreatePayload is the POST /leaderboards body.
type LeaderboardCreatePayload struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
	Info string `json:"info"`
}

// Validate will run validation rules
func (p LeaderboardCreatePayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&p.Slug, validation.Required),
	)
}

// UpdatePayload is the PATCH body shared by leaderboards and categories. A
// missing key leaves the column untouched; an explicit null clears info only.
type UpdatePayload struct {
	Name   Field[string] `json:"name"`
	Slug   Field[string] `json:"slug"`
	Info   Field[string] `json:"info"`
	Status Field[string] `json:"status"`
}

func (p UpdatePayload) wantsUndelete() bool {
	return p.Status.Set && !p.Status.Null && p.Status.Value == string(StatusPublished)
}

func (p UpdatePayload) applyTo(name, slug, info *string) error {
	if p.Name.Set {
		if p.Name.Null {
			return goerrors.New("name must not be null", goerrors.CategoryValidation)
		}
		*name = p.Name.Value
	}
	if p.Slug.Set {
		if p.Slug.Null {
			return goerrors.New("slug must not be null", goerrors.CategoryValidation)
		}
		*slug = p.Slug.Value
	}
	if p.Info.Set {
		if p.Info.Null {
			*info = ""
		} else {
			*info = p.Info.Value
		}
	}
	return nil
}

func (c *LifecycleController) LeaderboardCreate(ctx router.Context) error {
	payload := new(LeaderboardCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		return ctx.JSON(router.StatusBadRequest, APIError{
			Title:  "Bad Request",
			Detail: "failed to parse body",
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusUnprocessableEntity, APIError{
			Title:  "Validation Failed",
			Detail: err.Error(),
		})
	}

	record, err := c.Leaderboards.Create(ctx.Context(), &Leaderboard{
		Name: payload.Name,
		Slug: payload.Slug,
		Info: payload.Info,
	})
	if err != nil {
		c.Logger.Error("leaderboard create error: %v", err)
		return RenderLifecycleError(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, record)
}

func (c *LifecycleController) LeaderboardList(ctx router.Context) error {
	criteria, query := listCriteriaFromRequest(ctx)

	var records []*Leaderboard
	var total int
	var err error

	if query != "" {
		records, total, err = c.Leaderboards.Search(ctx.Context(), query, criteria)
	} else {
		records, total, err = c.Leaderboards.List(ctx.Context(), criteria)
	}

	if err != nil {
		c.Logger.Error("leaderboard list error: %v", err)
		return RenderLifecycleError(ctx, err)
	}

	return renderPage(ctx, records, total, criteria)
}

func (c *LifecycleController) LeaderboardShow(ctx router.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return RenderLifecycleError(ctx, err)
	}

	record, err := c.Leaderboards.GetByID(ctx.Context(), id)
	if err != nil {
		return RenderLifecycleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, record)
}

func (c *LifecycleController) LeaderboardUpdate(ctx router.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return RenderLifecycleError(ctx, err)
	}

	payload := new(UpdatePayload)
	if err := ctx.Bind(payload); err != nil {
		return ctx.JSON(router.StatusBadRequest, APIError{
			Title:  "Bad Request",
			Detail: "failed to parse body",
		})
	}

	var opts []UpdateOption
	if payload.wantsUndelete() {
		opts = append(opts, WithUndelete())
	}

	_, err = c.Leaderboards.Update(ctx.Context(), id, func(l *Leaderboard) error {
		return payload.applyTo(&l.Name, &l.Slug, &l.Info)
	}, opts...)
	if err != nil {
		c.Logger.Error("leaderboard update error: %v", err)
		return RenderLifecycleError(ctx, err)
	}

	return ctx.NoContent(router.StatusNoContent)
}

func (c *LifecycleController) LeaderboardDelete(ctx router.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return RenderLifecycleError(ctx, err)
	}

	if _, err := c.Leaderboards.Delete(ctx.Context(), id); err != nil {
		c.Logger.Error("leaderboard delete error: %v", err)
		return RenderLifecycleError(ctx, err)
	}

	return ctx.NoContent(router.StatusNoContent)
}

func (c *LifecycleController) LeaderboardRestore(ctx router.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return RenderLifecycleError(ctx, err)
	}

	record, err := c.Leaderboards.Restore(ctx.Context(), id)
	if err != nil {
		c.Logger.Error("leaderboard restore error: %v", err)
		return RenderLifecycleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, record)
}

// CategoryCreatePayload is the POST /leaderboard/:id/categories body.
type CategoryCreatePayload struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
	Info string `json:"info"`
}

// Validate will run validation rules
func (p CategoryCreatePayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&p.Slug, validation.Required),
	)
}

func (c *LifecycleController) CategoryCreate(ctx router.Context) error {
	leaderboardID, err := pathID(ctx)
	if err != nil {
		return RenderLifecycleError(ctx, err)
	}

	payload := new(CategoryCreatePayload)
	if err := ctx.Bind(payload); err != nil {
		return ctx.JSON(router.StatusBadRequest, APIError{
			Title:  "Bad Request",
			Detail: "failed to parse body",
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusUnprocessableEntity, APIError{
			Title:  "Validation Failed",
			Detail: err.Error(),
		})
	}

	// the owning leaderboard must exist and be live
	owner, err := c.Leaderboards.GetByID(ctx.Context(), leaderboardID)
	if err != nil {
		return RenderLifecycleError(ctx, err)
	}
	if owner.DeletedAt != nil {
		return RenderLifecycleError(ctx, goerrors.New("leaderboard not found", goerrors.CategoryNotFound).
			WithCode(goerrors.CodeNotFound).
			WithMetadata(map[string]any{"id": leaderboardID.String()}))
	}

	record, err := c.Categories.Create(ctx.Context(), &Category{
		LeaderboardID: leaderboardID,
		Name:          payload.Name,
		Slug:          payload.Slug,
		Info:          payload.Info,
	})
	if err != nil {
		c.Logger.Error("category create error: %v", err)
		return RenderLifecycleError(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, record)
}

func (c *LifecycleController) CategoryList(ctx router.Context) error {
	leaderboardID, err := pathID(ctx)
	if err != nil {
		return RenderLifecycleError(ctx, err)
	}

	criteria, query := listCriteriaFromRequest(ctx)
	scope := CategoriesOf(leaderboardID)

	var records []*Category
	var total int

	if query != "" {
		records, total, err = c.Categories.Search(ctx.Context(), query, criteria, scope)
	} else {
		records, total, err = c.Categories.List(ctx.Context(), criteria, scope)
	}

	if err != nil {
		c.Logger.Error("category list error: %v", err)
		return RenderLifecycleError(ctx, err)
	}

	return renderPage(ctx, records, total, criteria)
}

func (c *LifecycleController) CategoryUpdate(ctx router.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return RenderLifecycleError(ctx, err)
	}

	payload := new(UpdatePayload)
	if err := ctx.Bind(payload); err != nil {
		return ctx.JSON(router.StatusBadRequest, APIError{
			Title:  "Bad Request",
			Detail: "failed to parse body",
		})
	}

	var opts []UpdateOption
	if payload.wantsUndelete() {
		opts = append(opts, WithUndelete())
	}

	_, err = c.Categories.Update(ctx.Context(), id, func(cat *Category) error {
		return payload.applyTo(&cat.Name, &cat.Slug, &cat.Info)
	}, opts...)
	if err != nil {
		c.Logger.Error("category update error: %v", err)
		return RenderLifecycleError(ctx, err)
	}

	return ctx.NoContent(router.StatusNoContent)
}

func (c *LifecycleController) CategoryDelete(ctx router.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return RenderLifecycleError(ctx, err)
	}

	if _, err := c.Categories.Delete(ctx.Context(), id); err != nil {
		c.Logger.Error("category delete error: %v", err)
		return RenderLifecycleError(ctx, err)
	}

	return ctx.NoContent(router.StatusNoContent)
}

func (c *LifecycleController) CategoryRestore(ctx router.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return RenderLifecycleError(ctx, err)
	}

	record, err := c.Categories.Restore(ctx.Context(), id)
	if err != nil {
		c.Logger.Error("category restore error: %v", err)
		return RenderLifecycleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, record)
}

// AccountController exposes registration, login, and the verification token
// flows over JSON endpoints.
type AccountController struct {
	Repo     RepositoryManager
	Auther   *Authenticator
	Mailer   Mailer
	Links    LinkBuilder
	Activity ActivitySink
	Logger   Logger
}

// AccountControllerOption configures the controller.
type AccountControllerOption func(*AccountController) *AccountController

// NewAccountController creates the controller, panicking on missing deps.
func NewAccountController(opts ...AccountControllerOption) *AccountController {
	c := &AccountController{
		Activity: noopActivitySink{},
		Logger:   defLogger{},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in account controller...")
	}

	if c.Mailer == nil {
		c.Mailer = DevMailer{Logger: c.Logger}
	}

	return c
}

// RegisterAccountRoutes mounts the account endpoints.
func RegisterAccountRoutes(app RouteRegistrar, opts ...AccountControllerOption) *AccountController {
	controller := NewAccountController(opts...)

	app.Post("/auth/register", controller.Register)
	app.Post("/auth/login", controller.Login)

	app.Post("/account/confirm", controller.RequestConfirmation)
	app.Put("/account/confirm/:token", controller.Confirm)

	app.Post("/account/recover", controller.RequestRecovery)
	app.Get("/account/recover/:token", controller.TestRecovery)
	app.Post("/account/recover/:token", controller.ResetPassword)

	return controller
}

func (a *AccountController) Register(ctx router.Context) error {
	payload := new(RegisterUserMessage)
	if err := ctx.Bind(payload); err != nil {
		return ctx.JSON(router.StatusBadRequest, APIError{
			Title:  "Bad Request",
			Detail: "failed to parse body",
		})
	}

	var resp *RegisterUserResponse
	payload.OnResponse = func(r *RegisterUserResponse) { resp = r }

	handler := NewRegisterUserHandler(a.Repo)
	if err := handler.Execute(ctx.Context(), *payload); err != nil {
		a.Logger.Error("register error: %v", err)
		return RenderTokenError(ctx, err, router.StatusConflict)
	}

	return ctx.JSON(router.StatusCreated, resp.User)
}

// LoginPayload is the POST /auth/login body.
type LoginPayload struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func (a *AccountController) Login(ctx router.Context) error {
	if a.Auther == nil {
		return renderInternal(ctx, goerrors.New("authenticator not configured", goerrors.CategoryInternal))
	}

	payload := new(LoginPayload)
	if err := ctx.Bind(payload); err != nil {
		return ctx.JSON(router.StatusBadRequest, APIError{
			Title:  "Bad Request",
			Detail: "failed to parse body",
		})
	}

	token, err := a.Auther.Login(ctx.Context(), payload.Identifier, payload.Password)
	if err != nil {
		return RenderTokenError(ctx, err, router.StatusConflict)
	}

	return ctx.JSON(router.StatusOK, map[string]string{"token": token})
}

// RequestConfirmation issues a confirmation token for a registered account
// and emails its owner.
func (a *AccountController) RequestConfirmation(ctx router.Context) error {
	payload := new(InitializeConfirmationMessage)
	if err := ctx.Bind(payload); err != nil {
		return ctx.JSON(router.StatusBadRequest, APIError{
			Title:  "Bad Request",
			Detail: "failed to parse body",
		})
	}

	var resp *InitializeConfirmationResponse
	payload.OnResponse = func(r *InitializeConfirmationResponse) { resp = r }

	handler := NewInitializeConfirmationHandler(a.Repo, a.Mailer, a.Links).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	if err := handler.Execute(ctx.Context(), *payload); err != nil {
		a.Logger.Error("confirmation request error: %v", err)
		return RenderTokenError(ctx, err, router.StatusConflict)
	}

	return ctx.JSON(router.StatusOK, map[string]bool{"email_sent": resp.EmailSent})
}

func (a *AccountController) Confirm(ctx router.Context) error {
	var resp *ConfirmAccountResponse

	msg := ConfirmAccountMessage{
		Token:      ctx.Param("token", ""),
		OnResponse: func(r *ConfirmAccountResponse) { resp = r },
	}

	handler := NewConfirmAccountHandler(a.Repo).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	if err := handler.Execute(ctx.Context(), msg); err != nil {
		a.Logger.Error("confirm error: %v", err)
		return RenderTokenError(ctx, err, router.StatusConflict)
	}

	return ctx.JSON(router.StatusOK, resp.User)
}

// RequestRecovery issues a recovery token and emails its owner.
func (a *AccountController) RequestRecovery(ctx router.Context) error {
	payload := new(InitializeRecoveryMessage)
	if err := ctx.Bind(payload); err != nil {
		return ctx.JSON(router.StatusBadRequest, APIError{
			Title:  "Bad Request",
			Detail: "failed to parse body",
		})
	}

	var resp *InitializeRecoveryResponse
	payload.OnResponse = func(r *InitializeRecoveryResponse) { resp = r }

	handler := NewInitializeRecoveryHandler(a.Repo, a.Mailer, a.Links).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	if err := handler.Execute(ctx.Context(), *payload); err != nil {
		a.Logger.Error("recovery request error: %v", err)
		return RenderTokenError(ctx, err, router.StatusConflict)
	}

	return ctx.JSON(router.StatusOK, map[string]bool{"email_sent": resp.EmailSent})
}

// TestRecovery probes a recovery token without consuming it. Every
// ineligible reason collapses to 404.
func (a *AccountController) TestRecovery(ctx router.Context) error {
	var resp *VerifyRecoveryResponse

	msg := VerifyRecoveryMessage{
		Token:      ctx.Param("token", ""),
		OnResponse: func(r *VerifyRecoveryResponse) { resp = r },
	}

	handler := NewVerifyRecoveryHandler(a.Repo)
	if err := handler.Execute(ctx.Context(), msg); err != nil {
		a.Logger.Error("recovery verify error: %v", err)
		return renderInternal(ctx, err)
	}

	if !resp.Usable() {
		return renderTokenNotFound(ctx)
	}

	return ctx.JSON(router.StatusOK, resp)
}

// ResetPasswordPayload is the POST /account/recover/:token body.
type ResetPasswordPayload struct {
	Password string `json:"password"`
}

func (a *AccountController) ResetPassword(ctx router.Context) error {
	payload := new(ResetPasswordPayload)
	if err := ctx.Bind(payload); err != nil {
		return ctx.JSON(router.StatusBadRequest, APIError{
			Title:  "Bad Request",
			Detail: "failed to parse body",
		})
	}

	var resp *ResetPasswordResponse

	msg := ResetPasswordMessage{
		Token:      ctx.Param("token", ""),
		Password:   payload.Password,
		OnResponse: func(r *ResetPasswordResponse) { resp = r },
	}

	handler := NewResetPasswordHandler(a.Repo).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	if err := handler.Execute(ctx.Context(), msg); err != nil {
		a.Logger.Error("password reset error: %v", err)
		// the role gate reflects account state, not token validity
		return RenderTokenError(ctx, err, router.StatusForbidden)
	}

	return ctx.JSON(router.StatusOK, map[string]bool{"reset": resp != nil})
}

func pathID(ctx router.Context) (uuid.UUID, error) {
	raw := ctx.Param("id", "")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, goerrors.New("record not found", goerrors.CategoryNotFound).
			WithCode(goerrors.CodeNotFound).
			WithMetadata(map[string]any{"id": raw})
	}
	return id, nil
}

func listCriteriaFromRequest(ctx router.Context) (ListCriteria, string) {
	criteria := ListCriteria{Status: StatusPublished}

	switch StatusFilter(ctx.Query("status")) {
	case StatusDeleted:
		criteria.Status = StatusDeleted
	case StatusAny:
		criteria.Status = StatusAny
	}

	if offset, err := strconv.Atoi(ctx.Query("offset")); err == nil {
		criteria.Offset = offset
	}
	if limit, err := strconv.Atoi(ctx.Query("limit")); err == nil {
		criteria.Limit = limit
	}

	return criteria, ctx.Query("q")
}

func renderPage[T any](ctx router.Context, records []T, total int, criteria ListCriteria) error {
	offset, limit := normalizePage(criteria.Offset, criteria.Limit)
	return ctx.JSON(router.StatusOK, map[string]any{
		"items":  records,
		"total":  total,
		"offset": offset,
		"limit":  limit,
	})
}
