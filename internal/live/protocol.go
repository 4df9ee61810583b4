// Package live implements the client side of the bidirectional realtime
// endpoint: one websocket carrying JSON frames with base64 PCM media both
// ways, tool-call requests from the model and tool responses back.
package live

import (
	"encoding/json"

	"github.com/canvaslabs/canvas-voice/internal/tools"
)

// clientMessage is the envelope for everything we send after dialing.
type clientMessage struct {
	Setup         *setupPayload        `json:"setup,omitempty"`
	RealtimeInput *realtimeInput       `json:"realtimeInput,omitempty"`
	ClientContent *clientContent       `json:"clientContent,omitempty"`
	ToolResponse  *toolResponsePayload `json:"toolResponse,omitempty"`
}

type setupPayload struct {
	Model             string            `json:"model"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Tools             []toolDeclaration `json:"tools,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type toolDeclaration struct {
	FunctionDeclarations []tools.Declaration `json:"functionDeclarations"`
}

type realtimeInput struct {
	MediaChunks []MediaChunk `json:"mediaChunks,omitempty"`
}

// MediaChunk is one base64 media payload with its declared mime type.
type MediaChunk struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type clientContent struct {
	Turns        []content `json:"turns,omitempty"`
	TurnComplete bool      `json:"turnComplete"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts,omitempty"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *MediaChunk `json:"inlineData,omitempty"`
}

type toolResponsePayload struct {
	FunctionResponses []FunctionResponse `json:"functionResponses"`
}

// FunctionResponse answers exactly one FunctionCall, correlated by id.
type FunctionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// ServerMessage is one decoded frame from the endpoint. Any combination of
// fields may be present in a single frame.
type ServerMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *ServerContent `json:"serverContent,omitempty"`
	ToolCall      *ToolCall      `json:"toolCall,omitempty"`
	GoAway        *struct{}      `json:"goAway,omitempty"`
}

// ServerContent carries a model turn: inline audio fragments and/or text.
type ServerContent struct {
	ModelTurn    *ModelTurn `json:"modelTurn,omitempty"`
	TurnComplete bool       `json:"turnComplete,omitempty"`
	Interrupted  bool       `json:"interrupted,omitempty"`
}

// ModelTurn holds the parts of one response turn.
type ModelTurn struct {
	Parts []ServerPart `json:"parts,omitempty"`
}

// ServerPart is either text or inline media.
type ServerPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *MediaChunk `json:"inlineData,omitempty"`
}

// ToolCall is a batch of function calls arriving in one frame. Calls are
// processed in array order; each must receive exactly one response.
type ToolCall struct {
	FunctionCalls []FunctionCall `json:"functionCalls"`
}

// FunctionCall is a single structured request from the model.
type FunctionCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// ParsedArgs decodes the argument mapping; malformed args yield an empty map
// rather than an error so the call can still be answered with a failure.
func (c FunctionCall) ParsedArgs() tools.Args {
	if len(c.Args) == 0 {
		return tools.Args{}
	}
	var args map[string]any
	if err := json.Unmarshal(c.Args, &args); err != nil || args == nil {
		return tools.Args{}
	}
	return args
}

// AudioChunks extracts the inline audio payloads of a server frame in order.
func (m ServerMessage) AudioChunks() []MediaChunk {
	if m.ServerContent == nil || m.ServerContent.ModelTurn == nil {
		return nil
	}
	var chunks []MediaChunk
	for _, p := range m.ServerContent.ModelTurn.Parts {
		if p.InlineData != nil && p.InlineData.Data != "" {
			chunks = append(chunks, *p.InlineData)
		}
	}
	return chunks
}
