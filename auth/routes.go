package auth

import "github.com/go-chi/chi/v5"

// Routes registers the controller actions. The simulate actions exist only outside
// production; the decision is made once, when the route table is built.
func (c *Controller) Routes(r chi.Router) {
	r.Get("/login", c.HandleLogin)
	r.Get("/callback", c.HandleCallback)
	r.Get("/logout", c.HandleLogout)
	r.Get("/out", c.HandleLoggedOut)

	if c.opts.Production {
		return
	}
	r.Get("/simulate", c.HandleSimulateLogin)
	r.Get("/simulate/{value}", c.HandleSimulate)
	r.Post("/doSimulate", c.HandleDoSimulate)
}
