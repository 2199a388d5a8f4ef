package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kodibridge"
	"kodibridge/internal/catalog"
	"kodibridge/internal/device"
	"kodibridge/internal/jsonrpc"
	"kodibridge/internal/service"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK       = "ok"
	statusExecuted = "executed"
	statusSaved    = "saved"
	statusDeleted  = "deleted"
	statusWaking   = "waking"

	errListDevices     = "failed to list devices"
	errSaveDevice      = "failed to save device"
	errDeleteDevice    = "failed to delete device"
	errInvalidBodyPref = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// CommandRequest is the payload for a single command invocation.
type CommandRequest struct {
	// Command name: standard ("cursor_up"), simple ("APP_SHUTDOWN") or
	// custom ("speed 2", "GUI.ActivateWindow {\"window\":\"home\"}")
	Command string `json:"command" binding:"required" example:"cursor_up"`
	// Extra parameters for commands that take them (volume, seek)
	Params map[string]any `json:"params,omitempty"`
	// Number of times to issue the command
	Repeat int `json:"repeat,omitempty" example:"3"`
	// Press-and-hold duration in milliseconds
	HoldMs int `json:"hold_ms,omitempty" example:"1000"`
	// Minimum wait after the command in milliseconds
	DelayMs int `json:"delay_ms,omitempty" example:"100"`
}

func (r CommandRequest) timing() device.Timing {
	return device.Timing{
		Repeat: r.Repeat,
		Hold:   time.Duration(r.HoldMs) * time.Millisecond,
		Delay:  time.Duration(r.DelayMs) * time.Millisecond,
	}
}

// SequenceRequest is an ordered list of command steps.
type SequenceRequest struct {
	Steps []CommandRequest `json:"steps" binding:"required"`
}

// commandError maps dispatch errors onto HTTP status codes: caller mistakes
// are 4xx, device trouble is 5xx.
func (h *Handler) commandError(c *gin.Context, err error, extra gin.H) {
	resp := gin.H{"error": err.Error()}
	for k, v := range extra {
		resp[k] = v
	}

	var rpcErr *jsonrpc.RPCError
	switch {
	case errors.Is(err, catalog.ErrUnknownCommand),
		errors.Is(err, catalog.ErrCommandTooLong),
		errors.Is(err, catalog.ErrInvalidParams):
		c.JSON(http.StatusBadRequest, resp)
	case errors.Is(err, device.ErrDeviceNotFound):
		c.JSON(http.StatusNotFound, resp)
	case errors.Is(err, device.ErrDeviceUnreachable):
		c.JSON(http.StatusServiceUnavailable, resp)
	case errors.Is(err, device.ErrNoActivePlayer):
		c.JSON(http.StatusConflict, resp)
	case errors.Is(err, jsonrpc.ErrTimeout), errors.As(err, &rpcErr):
		c.JSON(http.StatusBadGateway, resp)
	default:
		c.JSON(http.StatusInternalServerError, resp)
	}
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      List configured devices
// @Tags         devices
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, devices"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/devices [get]
// @Security     BearerAuth
func (h *Handler) listDevices(c *gin.Context) {
	devices, err := h.services.Registry.List(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errListDevices, "devices_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(devices), "devices": devices})
}

// @Summary      Create or update a device
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        body  body   kodibridge.DeviceEndpoint  true  "Device endpoint"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/devices [put]
// @Security     BearerAuth
func (h *Handler) saveDevice(c *gin.Context) {
	var input struct {
		kodibridge.DeviceEndpoint
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	d := input.DeviceEndpoint
	d.Password = input.Password

	if err := h.services.Registry.Save(c.Request.Context(), d); err != nil {
		if errors.Is(err, service.ErrInvalidDevice) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errSaveDevice, "device_save_failed", err, "id", d.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusSaved, "id": d.ID})
}

// @Summary      Get a device
// @Tags         devices
// @Produce      json
// @Param        id  path  string  true  "Device id"
// @Success      200  {object}  kodibridge.DeviceEndpoint
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/devices/{id} [get]
// @Security     BearerAuth
func (h *Handler) getDevice(c *gin.Context) {
	d, err := h.services.Registry.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errListDevices, "device_get_failed", err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// @Summary      Delete a device
// @Tags         devices
// @Produce      json
// @Param        id  path  string  true  "Device id"
// @Success      200  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/devices/{id} [delete]
// @Security     BearerAuth
func (h *Handler) deleteDevice(c *gin.Context) {
	id := c.Param("id")
	if err := h.services.Registry.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errDeleteDevice, "device_delete_failed", err, "id", id)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusDeleted, "id": id})
}

// @Summary      Invoke a command
// @Description  Issues one symbolic, simple or custom command with optional repeat/hold/delay timing.
// @Tags         commands
// @Accept       json
// @Produce      json
// @Param        id    path  string          true  "Device id"
// @Param        body  body  CommandRequest  true  "Command payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/v1/devices/{id}/commands [post]
// @Security     BearerAuth
func (h *Handler) invokeCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}

	id := c.Param("id")
	if err := h.services.Control.Invoke(c.Request.Context(), id, req.Command, req.Params, req.timing()); err != nil {
		if h.log != nil {
			h.log.Infow("command_failed", "device", id, "command", req.Command, "err", err)
		}
		h.commandError(c, err, gin.H{"command": req.Command})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusExecuted, "command": req.Command})
}

// @Summary      Invoke a command sequence
// @Description  Runs the steps strictly in order; the first failing step aborts the remainder and its index is reported.
// @Tags         commands
// @Accept       json
// @Produce      json
// @Param        id    path  string           true  "Device id"
// @Param        body  body  SequenceRequest  true  "Sequence payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/v1/devices/{id}/sequence [post]
// @Security     BearerAuth
func (h *Handler) invokeSequence(c *gin.Context) {
	var req SequenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	if len(req.Steps) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sequence requires at least one step"})
		return
	}

	steps := make([]device.Step, 0, len(req.Steps))
	for _, s := range req.Steps {
		steps = append(steps, device.Step{Command: s.Command, Params: s.Params, Timing: s.timing()})
	}

	id := c.Param("id")
	if err := h.services.Control.InvokeSequence(c.Request.Context(), id, steps); err != nil {
		if h.log != nil {
			h.log.Infow("sequence_failed", "device", id, "err", err)
		}
		extra := gin.H{}
		var seqErr *device.SequenceError
		if errors.As(err, &seqErr) {
			extra["failed_step"] = seqErr.Index
		}
		h.commandError(c, err, extra)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusExecuted, "steps": len(steps)})
}

// @Summary      Get device status
// @Tags         devices
// @Produce      json
// @Param        id  path  string  true  "Device id"
// @Success      200  {object}  map[string]interface{}  "connection, status"
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/devices/{id}/status [get]
// @Security     BearerAuth
func (h *Handler) deviceStatus(c *gin.Context) {
	state, status, err := h.services.Control.Status(c.Param("id"))
	if err != nil {
		h.commandError(c, err, gin.H{})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connection": state, "status": status})
}

// @Summary      Wake a suspended device
// @Tags         devices
// @Produce      json
// @Param        id  path  string  true  "Device id"
// @Success      200  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/devices/{id}/wake [post]
// @Security     BearerAuth
func (h *Handler) wakeDevice(c *gin.Context) {
	id := c.Param("id")
	if err := h.services.Control.Wake(id); err != nil {
		h.commandError(c, err, gin.H{})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusWaking, "id": id})
}
