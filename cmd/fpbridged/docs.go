package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           fpbridge API
// @version         1.0
// @description     HTTP bridge to a fingerprint sensor: synchronous commands, queued captures and a single-listener event channel.
//
// @contact.name   fpbridge maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http

// commandDoc documents POST /v1/commands/{name}.
//
// @Summary      Dispatch a command
// @Description  Runs a synchronous command and returns its result, or queues a capture (getFpImage, getFpFeature, getFingerInfo) and returns its task id. The capture result arrives on /v1/events.
// @Tags         commands
// @Accept       json
// @Produce      json
// @Param        name  path      string  true   "Command name"
// @Param        args  body      object  false  "Command arguments"
// @Success      200   {object}  types.CommandResponse
// @Success      202   {object}  types.CommandResponse
// @Failure      400   {object}  types.ErrorResponse
// @Failure      429   {object}  types.ErrorResponse
// @Failure      501   {object}  types.ErrorResponse
// @Failure      503   {object}  types.ErrorResponse
// @Router       /v1/commands/{name} [post]
func commandDoc() {}

// eventsDoc documents GET /v1/events.
//
// @Summary      Event channel
// @Description  Registers the caller as the only event listener (replacing any other). WebSocket upgrades receive one text message per event; other requests receive NDJSON.
// @Tags         events
// @Produce      json
// @Success      200  {object}  types.Event
// @Failure      503  {object}  types.ErrorResponse
// @Router       /v1/events [get]
func eventsDoc() {}

// statusDoc documents GET /status.
//
// @Summary      Bridge status
// @Tags         status
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Router       /status [get]
func statusDoc() {}

