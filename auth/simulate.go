package auth

import (
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/session-auth/handlers"
	"github.com/upb/session-auth/services"
	"github.com/upb/session-auth/utils"
	"go.uber.org/zap"
)

var simulateForm = template.Must(template.New("simulate").Parse(`<!DOCTYPE html>
<html>
<head><title>Simulate login</title></head>
<body>
<h1>Simulate login</h1>
<p>Development only. The value becomes the user id (and e-mail when the e-mail policy is active).</p>
<form method="post" action="{{.Action}}">
<input type="text" name="value" placeholder="user id or e-mail" autofocus required>
<button type="submit">Log in</button>
</form>
</body>
</html>
`))

type simulateRequest struct {
	Value string `validate:"required,max=256"`
}

// HandleSimulateLogin renders the simulate form
func (c *Controller) HandleSimulateLogin(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct{ Action string }{Action: c.opts.BasePath + "/doSimulate"}
	if err := simulateForm.Execute(w, data); err != nil {
		c.logger.Error("failed to render simulate form", zap.Error(err))
	}
}

// HandleSimulate logs in as the {value} path parameter without calling the provider
func (c *Controller) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	c.simulate(w, r, chi.URLParam(r, "value"))
}

// HandleDoSimulate logs in as the posted form value
func (c *Controller) HandleDoSimulate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		handlers.HandleValidationError(w, err, c.logger)
		return
	}
	c.simulate(w, r, r.PostFormValue("value"))
}

func (c *Controller) simulate(w http.ResponseWriter, r *http.Request, value string) {
	if err := utils.ValidateStruct(simulateRequest{Value: value}); err != nil {
		handlers.HandleValidationError(w, err, c.logger)
		return
	}

	raw, err := c.tokens.BuildSimulatedJWT(value, c.opts.SimulateClaims)
	if err != nil {
		handlers.HandleServiceError(w, services.WrapInternal("failed to sign simulated token", err), c.logger)
		return
	}

	c.logger.Info("simulated login", zap.String("value", value))
	c.establish(w, r, raw, 0)
}
