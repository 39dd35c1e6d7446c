package khanrender

import (
	"github.com/gofiber/fiber/v2"

	"github.com/khankhulgun/khanrender/controllers"
)

// Set registers the rendered-tile routes on a fiber application. Maps
// are registered separately through controllers.RegisterMap.
func Set(app *fiber.App) {
	app.Get("/rendered-tiles/:map/style.json", controllers.StyleHandler)
	app.Get("/rendered-tiles/:map/:z/:x/:y.png", controllers.RenderedTileHandler)
	app.Post("/rendered-tiles/:map/groups", controllers.GroupVisibilityHandler)

	app.Static("/assets", controllers.Config.PublicDir)
}
