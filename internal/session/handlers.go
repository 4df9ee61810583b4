package session

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/canvaslabs/canvas-voice/internal/protocol"
	"github.com/canvaslabs/canvas-voice/internal/report"
	"github.com/canvaslabs/canvas-voice/internal/tools"
)

func (e *Engine) registerHandlers() {
	e.dispatcher.Register(tools.NameGetSystemState, e.handleGetSystemState)
	e.dispatcher.Register(tools.NameControlScroll, e.handleControlScroll)
	e.dispatcher.Register(tools.NameNavigateToPosition, e.handleNavigate)
	e.dispatcher.Register(tools.NameAnalyzeViewport, e.handleAnalyzeViewport)
	e.dispatcher.Register(tools.NamePerformElementAction, e.handleElementAction)
	e.dispatcher.Register(tools.NameManageUIState, e.handleManageUIState)
	e.dispatcher.Register(tools.NameTriggerNativeGeneration, e.handleNativeGeneration)
	e.dispatcher.Register(tools.NamePerformItemAction, e.handleItemAction)
	e.dispatcher.Register(tools.NameApplySettingsGlobally, e.handleApplyGlobally)
	e.dispatcher.Register(tools.NameStartProcessingQueue, e.handleStartProcessing)
	e.dispatcher.Register(tools.NameAnalyzeImages, e.handleAnalyzeImages)
	e.dispatcher.Register(tools.NameManageQueueActions, e.handleQueueActions)
	e.dispatcher.Register(tools.NameManageCompositeSettings, e.handleCompositeSettings)
	e.dispatcher.Register(tools.NameRequestVisualContext, e.handleVisualContext)
	e.dispatcher.Register(tools.NameReadDocumentation, e.handleReadDocumentation)
	e.dispatcher.Register(tools.NamePlaybackControl, e.handlePlaybackControl)
	e.dispatcher.Register(tools.NameCloseAssistant, e.handleCloseAssistant)
}

func (e *Engine) sendCommand(cmd protocol.AssistantCommand) error {
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = e.clock().UTC()
	}
	return e.commands.Send(cmd)
}

func (e *Engine) commandResult(cmd protocol.AssistantCommand, okMessage string) tools.Result {
	if err := e.sendCommand(cmd); err != nil {
		return tools.Fail("failed to deliver command: %v", err)
	}
	return tools.Ok(okMessage)
}

func (e *Engine) handleGetSystemState(_ context.Context, _ tools.Args) tools.Result {
	e.mu.Lock()
	snapshot := e.snapshotLocked()
	e.mu.Unlock()
	return tools.Ok(report.Generate(snapshot))
}

var scrollFractions = map[string]float64{
	"SMALL":  0.25,
	"NORMAL": 0.5,
	"LARGE":  0.9,
}

func (e *Engine) handleControlScroll(_ context.Context, args tools.Args) tools.Result {
	direction := strings.ToUpper(args.String("direction"))
	if direction != "UP" && direction != "DOWN" {
		return tools.Fail("direction must be UP or DOWN, got %q", args.String("direction"))
	}
	intensity := strings.ToUpper(args.String("intensity"))
	if intensity == "" {
		intensity = "NORMAL"
	}
	fraction, ok := scrollFractions[intensity]
	if !ok {
		return tools.Fail("intensity must be SMALL, NORMAL or LARGE, got %q", args.String("intensity"))
	}
	cmd := protocol.AssistantCommand{
		Kind:   protocol.CommandScroll,
		Scroll: &protocol.ScrollRequest{Direction: direction, Fraction: fraction},
	}
	return e.commandResult(cmd,
		fmt.Sprintf("scrolled %s by %.0f%% of the viewport", strings.ToLower(direction), fraction*100))
}

var itemRefPattern = regexp.MustCompile(`^(?:image|item|picture)\s+(\d+)$`)

// parseNavigation classifies a spoken position expression. The host performs
// the actual resolution; this only picks the addressing mode.
func parseNavigation(position string) (protocol.NavigateRequest, bool) {
	raw := strings.TrimSpace(position)
	lower := strings.ToLower(raw)
	switch lower {
	case "":
		return protocol.NavigateRequest{}, false
	case "top", "bottom":
		return protocol.NavigateRequest{Kind: "edge", Value: lower}, true
	}
	if strings.HasSuffix(lower, "%") {
		if n, err := strconv.ParseFloat(strings.TrimSuffix(lower, "%"), 64); err == nil {
			return protocol.NavigateRequest{Kind: "percent", Num: n}, true
		}
	}
	if strings.HasSuffix(lower, "px") {
		if n, err := strconv.ParseFloat(strings.TrimSuffix(lower, "px"), 64); err == nil {
			return protocol.NavigateRequest{Kind: "pixels", Num: n}, true
		}
	}
	if m := itemRefPattern.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.ParseFloat(m[1], 64)
		return protocol.NavigateRequest{Kind: "item", Num: n}, true
	}
	if strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, ".") || strings.HasPrefix(raw, "[") {
		return protocol.NavigateRequest{Kind: "selector", Value: raw}, true
	}
	return protocol.NavigateRequest{Kind: "text", Value: raw}, true
}

func (e *Engine) handleNavigate(_ context.Context, args tools.Args) tools.Result {
	req, ok := parseNavigation(args.String("position"))
	if !ok {
		return tools.Fail("position is required")
	}
	// Resolve free-text targets against the visible registry so the host
	// gets a concrete element id instead of having to search again.
	if req.Kind == "text" {
		if el, found := e.registry.FindByText(req.Value); found {
			req = protocol.NavigateRequest{Kind: "element", Value: el.ID}
		}
	}
	cmd := protocol.AssistantCommand{Kind: protocol.CommandNavigate, Navigate: &req}
	return e.commandResult(cmd, fmt.Sprintf("navigating to %s", args.String("position")))
}

const maxListedElements = 12

func (e *Engine) handleAnalyzeViewport(_ context.Context, _ tools.Args) tools.Result {
	visible := e.registry.Analyze()
	if len(visible) == 0 {
		return tools.Ok("no interactive elements are visible in the current viewport")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d interactive elements visible:\n", len(visible))
	for i, el := range visible {
		if i == maxListedElements {
			fmt.Fprintf(&b, "... and %d more\n", len(visible)-maxListedElements)
			break
		}
		fmt.Fprintf(&b, "[%d] %s %s", i, el.Type, el.ID)
		if label := el.Attributes["label"]; label != "" {
			fmt.Fprintf(&b, " (%s)", label)
		}
		b.WriteString("\n")
	}
	return tools.Ok(strings.TrimRight(b.String(), "\n"))
}

func (e *Engine) handleElementAction(_ context.Context, args tools.Args) tools.Result {
	action := strings.ToUpper(args.String("action"))
	switch action {
	case "CLICK", "FOCUS", "UPDATE_VALUE":
	default:
		return tools.Fail("action must be CLICK, FOCUS or UPDATE_VALUE, got %q", args.String("action"))
	}

	element := protocol.ElementAction{Action: action, Value: args.String("value")}
	if args.Has("element_index") {
		idx := args.Int("element_index", -1)
		el, found := e.registry.Lookup(idx, "")
		if !found {
			return tools.Fail("no visible element at index %d", idx)
		}
		element.ID = el.ID
	} else if selector := args.String("selector"); selector != "" {
		element.Selector = selector
	} else {
		return tools.Fail("either element_index or selector is required")
	}

	cmd := protocol.AssistantCommand{Kind: protocol.CommandElementAction, Element: &element}
	return e.commandResult(cmd, fmt.Sprintf("%s performed", strings.ToLower(action)))
}

func (e *Engine) handleManageUIState(_ context.Context, args tools.Args) tools.Result {
	action := strings.ToUpper(args.String("action"))
	ui := protocol.UIVisibility{}
	switch action {
	case "OPEN_COMPOSITE", "CLOSE_COMPOSITE":
		ui.Target = "composite"
		ui.Open = action == "OPEN_COMPOSITE"
	case "OPEN_OCR", "CLOSE_OCR":
		ui.Target = "ocr"
		ui.Open = action == "OPEN_OCR"
	case "OPEN_GUIDE", "CLOSE_GUIDE":
		ui.Target = "guide"
		ui.Open = action == "OPEN_GUIDE"
	case "OPEN_LANGUAGE_MENU", "CLOSE_LANGUAGE_MENU":
		ui.Target = "language_menu"
		ui.Open = action == "OPEN_LANGUAGE_MENU"
	case "CLOSE_ALL":
		ui.Target = "all"
	case "CHANGE_LANG":
		lang, ok := tools.NormalizeLanguage(args.String("value"))
		if !ok {
			return tools.Fail("unsupported language %q", args.String("value"))
		}
		ui.Target = "language"
		ui.Lang = lang
	default:
		return tools.Fail("unknown UI action %q", args.String("action"))
	}

	cmd := protocol.AssistantCommand{Kind: protocol.CommandUIVisibility, UI: &ui}
	return e.commandResult(cmd, fmt.Sprintf("applied %s", strings.ToLower(action)))
}

func (e *Engine) handleNativeGeneration(_ context.Context, args tools.Args) tools.Result {
	host, _ := e.hostState()
	if host.IsNativeGenerating {
		return tools.Fail("a generation is already in progress")
	}
	prompt := args.String("prompt")
	if prompt == "" {
		prompt = strings.TrimSpace(host.NativePrompt)
	}
	if prompt == "" {
		return tools.Fail("no prompt available: supply one or have the user fill the input field")
	}
	cmd := protocol.AssistantCommand{
		Kind: protocol.CommandNativeGeneration,
		Generate: &protocol.GenerationRequest{
			Prompt:      prompt,
			AspectRatio: args.String("aspect_ratio"),
			Resolution:  args.String("resolution"),
			Format:      args.String("format"),
		},
	}
	return e.commandResult(cmd, "generation started")
}

func (e *Engine) handleItemAction(_ context.Context, args tools.Args) tools.Result {
	action := strings.ToUpper(args.String("action"))
	switch action {
	case "REMOVE", "EDIT", "DOWNLOAD", "REMASTER", "CREATE_VARIANTS", "SHARE":
	default:
		return tools.Fail("unknown item action %q", args.String("action"))
	}
	host, _ := e.hostState()
	idx := args.Int("targetIndex", 0)
	if idx < 1 || idx > len(host.Images) {
		return tools.Fail("index %d is out of range: the queue holds %d images", idx, len(host.Images))
	}
	cmd := protocol.AssistantCommand{
		Kind: protocol.CommandItemAction,
		Item: &protocol.ItemAction{Action: action, Index: idx},
	}
	return e.commandResult(cmd, fmt.Sprintf("%s applied to image %d", strings.ToLower(action), idx))
}

func (e *Engine) handleApplyGlobally(_ context.Context, _ tools.Args) tools.Result {
	host, _ := e.hostState()
	if len(host.Images) == 0 {
		return tools.Fail("the image queue is empty")
	}
	cmd := protocol.AssistantCommand{Kind: protocol.CommandApplyAll}
	return e.commandResult(cmd, fmt.Sprintf("settings applied to all %d images", len(host.Images)))
}

func (e *Engine) handleStartProcessing(_ context.Context, _ tools.Args) tools.Result {
	host, _ := e.hostState()
	if len(host.Images) == 0 {
		return tools.Fail("the image queue is empty")
	}
	cmd := protocol.AssistantCommand{
		Kind:  protocol.CommandQueueAction,
		Queue: &protocol.QueueAction{Action: "START_PROCESSING"},
	}
	return e.commandResult(cmd, "queue processing started")
}

func (e *Engine) handleAnalyzeImages(_ context.Context, _ tools.Args) tools.Result {
	host, _ := e.hostState()
	if len(host.Images) == 0 {
		return tools.Fail("the image queue is empty")
	}
	cmd := protocol.AssistantCommand{Kind: protocol.CommandAudit}
	return e.commandResult(cmd, "image analysis started")
}

func (e *Engine) handleQueueActions(_ context.Context, args tools.Args) tools.Result {
	action := strings.ToUpper(args.String("action"))
	switch action {
	case "CLEAR_ALL", "DOWNLOAD_ZIP":
	default:
		return tools.Fail("unknown queue action %q", args.String("action"))
	}
	cmd := protocol.AssistantCommand{
		Kind:  protocol.CommandQueueAction,
		Queue: &protocol.QueueAction{Action: action},
	}
	return e.commandResult(cmd, fmt.Sprintf("queue action %s applied", strings.ToLower(action)))
}

func (e *Engine) handleCompositeSettings(_ context.Context, args tools.Args) tools.Result {
	host, _ := e.hostState()
	if !host.Modals.Composite {
		return tools.Fail("composite modal is not open")
	}

	patch := protocol.CompositePatch{}
	touched := false
	if args.Has("prompt") {
		v := args.String("prompt")
		patch.Prompt = &v
		touched = true
	}
	if args.Has("caption") {
		v := args.String("caption")
		patch.Caption = &v
		touched = true
	}
	if args.Has("show_caption") {
		v := args.Bool("show_caption")
		patch.ShowCaption = &v
		touched = true
	}
	if args.Has("aspect_ratio") {
		v := args.String("aspect_ratio")
		patch.AspectRatio = &v
		touched = true
	}
	if args.Has("resolution") {
		v := args.String("resolution")
		patch.Resolution = &v
		touched = true
	}
	if args.Has("format") {
		v := args.String("format")
		patch.Format = &v
		touched = true
	}
	if !touched {
		return tools.Fail("no settings provided")
	}

	cmd := protocol.AssistantCommand{Kind: protocol.CommandCompositeSettings, Composite: &patch}
	return e.commandResult(cmd, "composite settings updated")
}

func (e *Engine) handleVisualContext(_ context.Context, _ tools.Args) tools.Result {
	sess := e.currentSession()
	if sess == nil {
		return tools.Fail("no active session")
	}
	host, _ := e.hostState()
	if len(host.Images) == 0 {
		return tools.Fail("the image queue is empty; nothing to show")
	}

	images := host.Images
	if limit := e.cfg.VisualContextMaxImages; limit > 0 && len(images) > limit {
		images = images[len(images)-limit:]
	}
	go e.streamVisualContext(sess, images)
	return tools.Ok(fmt.Sprintf("streaming %d recent frames; they will arrive momentarily", len(images)))
}

func (e *Engine) handleReadDocumentation(_ context.Context, _ tools.Args) tools.Result {
	host, _ := e.hostState()
	if !host.Modals.Guide {
		cmd := protocol.AssistantCommand{
			Kind: protocol.CommandUIVisibility,
			UI:   &protocol.UIVisibility{Target: "guide", Open: true},
		}
		if err := e.sendCommand(cmd); err != nil {
			e.log.Warn("failed to open documentation view", slogError(err))
		}
	}
	e.mu.Lock()
	lang := e.languageLocked()
	e.mu.Unlock()
	return tools.Ok(documentationText(lang))
}

func (e *Engine) handlePlaybackControl(_ context.Context, args tools.Args) tools.Result {
	sess := e.currentSession()
	if sess == nil {
		return tools.Fail("no active playback")
	}
	switch strings.ToUpper(args.String("action")) {
	case "PAUSE":
		sess.player.Pause()
		return tools.Ok("playback paused")
	case "RESUME":
		sess.player.Resume()
		return tools.Ok("playback resumed")
	case "STOP":
		sess.player.Stop()
		return tools.Ok("playback stopped and queue discarded")
	default:
		return tools.Fail("action must be PAUSE, RESUME or STOP, got %q", args.String("action"))
	}
}

// handleCloseAssistant enforces the two-step shutdown: the first unconfirmed
// call arms a pending-shutdown window and fails, asking for confirmation. A
// call with confirmed=true, or a second call inside the window, ends the
// session.
func (e *Engine) handleCloseAssistant(_ context.Context, args tools.Args) tools.Result {
	sess := e.currentSession()
	if sess == nil {
		return tools.Fail("no active session")
	}
	window := time.Duration(e.cfg.ShutdownConfirmWindowMS) * time.Millisecond
	if window <= 0 {
		window = 15 * time.Second
	}
	now := e.clock()

	sess.mu.Lock()
	armed := !sess.pendingShutdown.IsZero() && now.Sub(sess.pendingShutdown) <= window
	confirmed := args.Bool("confirmed") || armed
	if !confirmed {
		sess.pendingShutdown = now
	}
	sess.mu.Unlock()

	if !confirmed {
		return tools.Fail("confirmation required: ask the user to confirm ending the session, then call again with confirmed=true")
	}
	sess.markClosing()
	return tools.Ok("ending the session now; say goodbye")
}
