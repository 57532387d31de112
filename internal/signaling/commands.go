package signaling

import "encoding/json"

// inboundEnvelope is the superset of fields any inbound command may
// carry. Unused fields for a given cmd are simply left at their zero
// value, matching the teacher's single flat-envelope convention.
type inboundEnvelope struct {
	Cmd      string          `json:"cmd"`
	Type     string          `json:"type"`
	RoomID   json.Number     `json:"roomid"`
	ClientID json.Number     `json:"clientid"`
	Name     string          `json:"name"`
	Msg      string          `json:"msg"`
	DeviceID string          `json:"deviceid"`
	Data     json.RawMessage `json:"data"`
}

// outboundEnvelope is the single shape every outbound message takes:
// a command echo plus whichever of the per-cmd fields (spec.md §6's
// send/response/event shapes) is relevant.
type outboundEnvelope struct {
	Cmd    string `json:"cmd"`
	Type   string `json:"type,omitempty"`
	Msg    string `json:"msg,omitempty"`
	Data   any    `json:"data,omitempty"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	Mesg   string `json:"mesg,omitempty"`
}

const (
	resultSuccess = "SUCCESS"
	resultFailed  = "FAILED"
)

func marshalEnvelope(env any) ([]byte, error) { return json.Marshal(env) }

// handleIncoming runs the chunked-JSON reassembly algorithm from
// spec.md's signaling section: try the frame as a complete message
// first, then fall back to accumulating it onto the connection's chunk
// buffer, bounded by maxReassemblyRetries.
func (c *client) handleIncoming(raw []byte) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Cmd != "" {
		c.dispatch(env)
		return
	}

	c.chunk = append(c.chunk, raw...)
	var merged inboundEnvelope
	if err := json.Unmarshal(c.chunk, &merged); err == nil && merged.Cmd != "" {
		c.chunk = nil
		c.retries = 0
		c.dispatch(merged)
		return
	}

	c.retries++
	if c.retries > maxReassemblyRetries {
		c.chunk = nil
		c.retries = 0
	}
}

// dispatch routes an inbound envelope per spec.md §4.8/§6's command
// table: register/send/request, the last of which fans out again on
// its own "type" field.
func (c *client) dispatch(env inboundEnvelope) {
	switch env.Cmd {
	case "register":
		c.handleRegister(env)
	case "send":
		c.handleSend(env)
	case "request":
		c.handleRequest(env)
	default:
		c.sendEnvelope(outboundEnvelope{Cmd: "event", Type: "error", Mesg: "unknown command"})
	}
}

func (c *client) handleRegister(env inboundEnvelope) {
	peerID := env.ClientID.String()
	roomID := env.RoomID.String()

	sendToPeer := func(text string) error {
		c.sendEnvelope(outboundEnvelope{Cmd: "send", Msg: text})
		return nil
	}

	var deliver func(string)
	forward := func(text string) {
		if deliver != nil {
			deliver(text)
		}
	}

	if err := c.hub.proxy.Obtain("ws", roomID, peerID, env.Name, sessionHandlers(sendToPeer, forward)); err != nil {
		c.sendEnvelope(outboundEnvelope{Cmd: "event", Type: "error", Mesg: err.Error()})
		return
	}

	if c.hub.hooks.OnRegister != nil {
		d, err := c.hub.hooks.OnRegister(peerID, sendToPeer)
		if err != nil {
			c.hub.proxy.Release("ws", peerID)
			c.sendEnvelope(outboundEnvelope{Cmd: "event", Type: "error", Mesg: err.Error()})
			return
		}
		deliver = d
	}

	c.peerID = peerID
	c.roomID = roomID
	c.hasPeer = true
}

func (c *client) handleSend(env inboundEnvelope) {
	if !c.hasPeer {
		c.sendEnvelope(outboundEnvelope{Cmd: "event", Type: "error", Mesg: "not registered"})
		return
	}
	if ok := c.hub.proxy.MessageFromPeer(c.peerID, env.Msg); !ok {
		c.sendEnvelope(outboundEnvelope{Cmd: "event", Type: "error", Mesg: "session no longer active"})
		return
	}
	if innerType(env.Msg) == "bye" {
		c.hub.proxy.Release("ws", c.peerID)
		if c.hub.hooks.OnRelease != nil {
			c.hub.hooks.OnRelease(c.peerID)
		}
		c.hasPeer = false
	}
}

// innerType peeks at the "type" field of a send command's inner,
// stringified SDP/ICE envelope without fully decoding it, mirroring
// spec.md's "bye" release trigger.
func innerType(msg string) string {
	var inner struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(msg), &inner); err != nil {
		return ""
	}
	return inner.Type
}

// handleRequest fans out on the inbound "type" field per spec.md §6's
// request row: "deviceid" and "config" are the two recognized types.
func (c *client) handleRequest(env inboundEnvelope) {
	switch env.Type {
	case "deviceid":
		c.handleRequestDeviceID()
	case "config":
		c.handleRequestConfig(env)
	default:
		c.sendEnvelope(outboundEnvelope{Cmd: "event", Type: "error", Mesg: "unknown request type"})
	}
}

func (c *client) handleRequestDeviceID() {
	id := ""
	if c.hub.hooks.DeviceID != nil {
		id = c.hub.hooks.DeviceID()
	}
	c.sendEnvelope(outboundEnvelope{Cmd: "response", Type: "deviceid", Data: id, Result: resultSuccess})
}

// handleRequestConfig dispatches on the inbound "data" field per
// spec.md §4.8 item 4: a string verb ("read"/"save"/"reset-to-default"/
// "apply"), or a JSON object carrying a patch.
func (c *client) handleRequestConfig(env inboundEnvelope) {
	var verb string
	if err := json.Unmarshal(env.Data, &verb); err == nil {
		switch verb {
		case "read":
			c.respondConfigRead()
		case "save":
			c.respondConfigSave()
		case "reset-to-default":
			c.respondConfigReset()
		case "apply":
			c.respondConfigApply()
		default:
			c.sendEnvelope(outboundEnvelope{Cmd: "response", Type: "config", Result: resultFailed, Error: "unknown config verb"})
		}
		return
	}

	var patch map[string]any
	if err := json.Unmarshal(env.Data, &patch); err != nil {
		c.sendEnvelope(outboundEnvelope{Cmd: "response", Type: "config", Result: resultFailed, Error: err.Error()})
		return
	}
	var changed []string
	if c.hub.hooks.ConfigPatch != nil {
		changed = c.hub.hooks.ConfigPatch(patch)
	}
	c.sendEnvelope(outboundEnvelope{Cmd: "response", Type: "config", Data: changed, Result: resultSuccess})
}

func (c *client) respondConfigRead() {
	var data map[string]any
	if c.hub.hooks.ConfigRead != nil {
		data = c.hub.hooks.ConfigRead()
	}
	c.sendEnvelope(outboundEnvelope{Cmd: "response", Type: "config", Data: data, Result: resultSuccess})
}

func (c *client) respondConfigSave() {
	if c.hub.hooks.ConfigSave != nil {
		if err := c.hub.hooks.ConfigSave(); err != nil {
			c.sendEnvelope(outboundEnvelope{Cmd: "response", Type: "config", Result: resultFailed, Error: err.Error()})
			return
		}
	}
	c.sendEnvelope(outboundEnvelope{Cmd: "response", Type: "config", Result: resultSuccess})
}

func (c *client) respondConfigReset() {
	if c.hub.hooks.ConfigReset != nil {
		c.hub.hooks.ConfigReset()
	}
	c.sendEnvelope(outboundEnvelope{Cmd: "response", Type: "config", Result: resultSuccess})
}

func (c *client) respondConfigApply() {
	if c.hub.hooks.ConfigApply != nil {
		if err := c.hub.hooks.ConfigApply(); err != nil {
			c.sendEnvelope(outboundEnvelope{Cmd: "response", Type: "config", Result: resultFailed, Error: err.Error()})
			return
		}
	}
	c.sendEnvelope(outboundEnvelope{Cmd: "response", Type: "config", Result: resultSuccess})
}
