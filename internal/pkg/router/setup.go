package router

import (
	"github.com/coursebeam/entitlesync/app/controllers"
	"github.com/coursebeam/entitlesync/app/repository"
	"github.com/coursebeam/entitlesync/internal/pkg/cache"
	"github.com/coursebeam/entitlesync/internal/pkg/database"
	"github.com/coursebeam/entitlesync/internal/pkg/metrics/counter"
	"github.com/coursebeam/entitlesync/internal/pkg/reconcile"
	"github.com/gofiber/fiber/v2"
)

// Router installs a route group on the app
type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter wires the repositories, engine and controllers and installs
// all route groups. The engine gets its collaborators injected here; nothing
// below this level reaches for globals.
func InstallRouter(app *fiber.App) {
	repos := repository.NewRepositories(database.GetDB())
	mappingCache := cache.NewMappingCache(cache.GetClient())
	engine := reconcile.NewEngineFromRepositories(repos, mappingCache)
	webhooks := controllers.NewWebhookController(engine, repos.EventLog, counter.NewRecorder())

	setup(app, NewApiRouter(webhooks))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
