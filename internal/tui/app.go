package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"forge/internal/apperr"
	"forge/internal/chat"
	"forge/internal/events"
	"forge/internal/i18n"
	"forge/internal/orchestrator"
	"forge/internal/present"
	"forge/internal/session"
	"forge/internal/snapshot"
)

// PanelID 面板标识
// PanelID identifies a panel
type PanelID int

const (
	PanelChat PanelID = iota
	PanelSession
	PanelDials
	PanelPipeline
	panelCount
)

// Session is the part of an orchestrator session the TUI drives.
type Session interface {
	ID() string
	View() snapshot.Snapshot
	Messages() []chat.Message
	RunTurn(ctx context.Context, text string) (*events.Emitter, error)
	GoBack() (snapshot.Snapshot, error)
	Cancel()
}

// --- Tea Messages ---

// eventMsg carries one turn event from the session stream.
type eventMsg struct{ ev events.Event }

// turnEndMsg is sent once the event stream of a turn is closed.
type turnEndMsg struct{}

// waitForEvent reads the next event of a running turn.
func waitForEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return turnEndMsg{}
		}
		return eventMsg{ev: ev}
	}
}

// App Bubble Tea 主 Model
// App is the main Bubble Tea model
type App struct {
	// 布局 / Layout
	width  int
	height int

	// 面板 / Panels
	activePanel  PanelID
	chatView     viewport.Model
	sessionView  viewport.Model
	dialsView    viewport.Model
	pipelineView viewport.Model

	// 输入 / Input
	input textarea.Model

	// 会话 / Session
	ctx       context.Context
	session   Session
	modelName string
	tokens    int
	snap      snapshot.Snapshot

	// 内容缓冲 / Content buffers
	chatContent string
	pending     string

	// 状态 / State
	streaming bool
	events    <-chan events.Event
	lastError string

	// 配置 / Config
	theme    Theme
	keys     KeyMap
	locale   *i18n.I18n
	markdown *present.Renderer
}

// NewApp 创建 TUI 应用
// NewApp creates the TUI over one session. Turns run under ctx.
func NewApp(ctx context.Context, s Session, model string) App {
	ta := textarea.New()
	ta.Placeholder = i18n.T("input.placeholder")
	ta.CharLimit = 8192
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.Focus()

	a := App{
		activePanel: PanelChat,
		input:       ta,
		ctx:         ctx,
		session:     s,
		modelName:   model,
		theme:       DarkTheme(),
		keys:        DefaultKeyMap(),
		locale:      i18n.Global(),
		markdown:    present.NewRenderer(80, true),
	}
	for _, m := range s.Messages() {
		switch m.Role {
		case chat.RoleUser:
			a.AppendUserMessage(m.Content)
		case chat.RoleAssistant:
			a.appendChat("\n" + m.Content)
		}
	}
	a.refreshPanels()
	return a
}

func (a App) Init() tea.Cmd {
	return textarea.Blink
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, a.keys.Quit):
			if a.streaming {
				a.session.Cancel()
			}
			return a, tea.Quit
		case key.Matches(msg, a.keys.SwitchPanel):
			a.activePanel = (a.activePanel + 1) % panelCount
			return a, nil
		case key.Matches(msg, a.keys.Cancel):
			if a.streaming {
				a.session.Cancel()
			}
			return a, nil
		case key.Matches(msg, a.keys.Back):
			a.goBack()
			return a, nil
		case key.Matches(msg, a.keys.Submit):
			return a.submit()
		case key.Matches(msg, a.keys.PageUp, a.keys.PageDown):
			view := a.activeView()
			var cmd tea.Cmd
			*view, cmd = view.Update(msg)
			return a, cmd
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.relayout()
		return a, nil

	case eventMsg:
		a.handleEvent(msg.ev)
		return a, waitForEvent(a.events)

	case turnEndMsg:
		a.streaming = false
		a.events = nil
		a.pending = ""
		a.refreshPanels()
		return a, nil
	}

	// 更新输入区 / Update input area
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	cmds = append(cmds, cmd)

	return a, tea.Batch(cmds...)
}

func (a App) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(a.input.Value())
	if text == "" || a.streaming {
		return a, nil
	}
	em, err := a.session.RunTurn(a.ctx, text)
	if err != nil {
		a.showError(err)
		return a, nil
	}
	a.input.Reset()
	a.lastError = ""
	a.AppendUserMessage(text)
	a.streaming = true
	a.pending = ""
	a.events = em.Events()
	return a, waitForEvent(a.events)
}

// handleEvent folds one turn event into the chat and panels. The reply is
// kept pending until chat:end and dropped on error.
func (a *App) handleEvent(ev events.Event) {
	switch d := ev.Data.(type) {
	case events.ChatDelta:
		a.pending += d.Chunk
	case events.ToolStart:
		a.pending += "\n" + a.theme.MutedStyle.Render("🔧 "+a.locale.T("status.tool", d.ToolName)) + "\n"
	case events.ToolEnd:
		if d.IsError {
			a.pending += a.theme.ErrorStyle.Render("  ✗ "+d.ToolName+": "+present.ToolError(d.Result)) + "\n"
		} else {
			a.pending += a.theme.SuccessStyle.Render("  ✓ "+d.ToolName) + "\n"
		}
		a.refreshPanels()
	case events.UIReady:
		if md, ok := present.Component(d); ok {
			a.pending += "\n" + a.markdown.Render(md) + "\n"
		}
	case events.PanelUpdate:
		a.refreshPanels()
	case events.ChatEnd:
		a.tokens += d.Usage.TotalTokens
		a.appendChat("\n" + strings.TrimSpace(a.pending))
		a.pending = ""
	case events.Error:
		a.pending = ""
		if d.Code == string(apperr.KindCancelled) {
			a.appendChat(a.theme.DangerStyle.Render(a.locale.T("status.interrupted")))
		} else {
			a.lastError = d.Code + ": " + d.Message
			a.appendChat("\n❌ " + a.lastError)
		}
	}
	a.updateChatFromStream()
}

func (a *App) goBack() {
	if a.streaming {
		a.lastError = a.locale.T("error.busy")
		return
	}
	snap, err := a.session.GoBack()
	if err != nil {
		a.showError(err)
		return
	}
	a.appendChat(a.theme.MutedStyle.Render(a.locale.T("session.back", a.stageLabel(snap.CurrentStage))))
	a.refreshPanels()
}

func (a *App) showError(err error) {
	switch {
	case errors.Is(err, orchestrator.ErrTurnInFlight):
		a.lastError = a.locale.T("error.busy")
	case apperr.KindOf(err) == apperr.KindProvider:
		a.lastError = a.locale.T("error.provider", err.Error())
	default:
		a.lastError = err.Error()
	}
}

func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "Initializing..."
	}

	sidebarWidth, mainWidth, panelHeight := a.layout()
	inputHeight := 5
	statusHeight := 1

	// 构建各部分 / Build components
	tabs := a.renderTabs(mainWidth)
	panel := a.renderActivePanel(mainWidth, panelHeight)
	inputBox := a.renderInput(mainWidth, inputHeight)
	statusBar := a.renderStatusBar(a.width)

	// 左侧主区域 / Left main area
	main := lipgloss.JoinVertical(lipgloss.Left, tabs, panel, inputBox)

	// 右侧侧边栏 / Right sidebar
	if sidebarWidth > 0 {
		sidebar := a.renderSidebar(sidebarWidth, a.height-statusHeight)
		main = lipgloss.JoinHorizontal(lipgloss.Top, main, sidebar)
	}

	// 底部状态栏 / Bottom status bar
	return lipgloss.JoinVertical(lipgloss.Left, main, statusBar)
}

// --- 内部方法 / Internal methods ---

// layout splits the window into sidebar, main column and panel height.
func (a App) layout() (sidebarWidth, mainWidth, panelHeight int) {
	sidebarWidth = a.width * 25 / 100
	if sidebarWidth < 20 {
		sidebarWidth = 20
	}
	if sidebarWidth > 40 {
		sidebarWidth = 40
	}
	if a.width < 80 {
		sidebarWidth = 0
	}
	mainWidth = a.width - sidebarWidth
	if sidebarWidth > 0 {
		mainWidth-- // border
	}
	panelHeight = a.height - 5 - 1 - 1
	if panelHeight < 3 {
		panelHeight = 3
	}
	return sidebarWidth, mainWidth, panelHeight
}

func (a *App) relayout() {
	_, mainWidth, panelHeight := a.layout()

	a.chatView = viewport.New(mainWidth, panelHeight)
	a.sessionView = viewport.New(mainWidth, panelHeight)
	a.dialsView = viewport.New(mainWidth, panelHeight)
	a.pipelineView = viewport.New(mainWidth, panelHeight)
	a.markdown = present.NewRenderer(mainWidth-2, true)

	a.input.SetWidth(mainWidth - 4)
	a.refreshPanels()
	a.updateChatFromStream()
}

func (a *App) activeView() *viewport.Model {
	switch a.activePanel {
	case PanelSession:
		return &a.sessionView
	case PanelDials:
		return &a.dialsView
	case PanelPipeline:
		return &a.pipelineView
	default:
		return &a.chatView
	}
}

// refreshPanels re-reads the session and redraws the state panels.
func (a *App) refreshPanels() {
	a.snap = a.session.View()
	a.sessionView.SetContent(a.markdown.Render(present.State(a.snap)))
	a.dialsView.SetContent(renderDials(a.snap.Dials))
	a.pipelineView.SetContent(renderPipeline(a.snap))
}

func (a *App) appendChat(text string) {
	a.chatContent += text + "\n"
	a.chatView.SetContent(a.chatContent)
	a.chatView.GotoBottom()
}

func (a *App) updateChatFromStream() {
	// 在流式输出时，显示已有内容 + 流式缓冲
	content := a.chatContent
	if a.pending != "" {
		content += "\n" + a.pending
	}
	a.chatView.SetContent(content)
	a.chatView.GotoBottom()
}

func (a App) stageLabel(st session.Stage) string {
	return a.locale.T("stage." + string(st))
}

// --- 渲染方法 / Render methods ---

func (a App) renderTabs(width int) string {
	tabs := []struct {
		id   PanelID
		name string
	}{
		{PanelChat, a.locale.T("panel.chat")},
		{PanelSession, a.locale.T("panel.session")},
		{PanelDials, a.locale.T("panel.dials")},
		{PanelPipeline, a.locale.T("panel.pipeline")},
	}

	var parts []string
	for _, tab := range tabs {
		style := a.theme.InactiveTabStyle
		if tab.id == a.activePanel {
			style = a.theme.ActiveTabStyle
		}
		parts = append(parts, style.Render(tab.name))
	}

	return lipgloss.NewStyle().MaxWidth(width).Render(lipgloss.JoinHorizontal(lipgloss.Top, parts...))
}

func (a App) renderActivePanel(width, height int) string {
	style := lipgloss.NewStyle().
		Width(width).
		Height(height)

	view := a.activeView()
	return style.Render(view.View())
}

func (a App) renderInput(width, height int) string {
	style := a.theme.InputStyle.Width(width)
	return style.Render(a.input.View())
}

func (a App) renderSidebar(width, height int) string {
	var parts []string

	// 标题 / Title
	parts = append(parts, a.theme.TitleStyle.Render(" Forge"))
	name := a.snap.AdventureName
	if name == "" {
		name = "-"
	}
	parts = append(parts, "  "+name)
	parts = append(parts, "")

	// 阶段 / Stages
	track := renderStageTrack(a.snap, a.theme, a.stageLabel)
	for _, line := range strings.Split(track, "\n") {
		parts = append(parts, "  "+line)
	}
	parts = append(parts, "")
	if next := a.nextStatus(); next != "" {
		parts = append(parts, lipgloss.NewStyle().Width(width-2).Render(" "+next))
		parts = append(parts, "")
	}

	// 模型 / Model
	parts = append(parts, a.theme.TitleStyle.Render(" Model"))
	parts = append(parts, "  "+a.modelName)
	parts = append(parts, fmt.Sprintf("  tokens: %d", a.tokens))

	content := strings.Join(parts, "\n")

	style := a.theme.SidebarStyle.
		Width(width).
		Height(height)

	return style.Render(content)
}

// nextStatus names the next stage and what blocks it.
func (a App) nextStatus() string {
	next := a.snap.CurrentStage.Next()
	if next == a.snap.CurrentStage {
		return ""
	}
	if blocker := a.snap.State.Blocker(next, a.snap.Dials); blocker != "" {
		return a.locale.T("status.blocked", a.stageLabel(next), blocker)
	}
	return a.locale.T("status.next", a.stageLabel(next))
}

func (a App) renderStatusBar(width int) string {
	status := a.locale.T("status.ready")
	if a.streaming {
		status = a.locale.T("status.streaming")
	}
	if a.lastError != "" {
		status = a.theme.ErrorStyle.Render(a.lastError)
	}

	left := fmt.Sprintf(" %s · %s · %s", a.stageLabel(a.snap.CurrentStage), a.modelName, status)
	right := strings.Join([]string{
		a.locale.T("keys.esc"),
		a.locale.T("keys.ctrl_b"),
		a.locale.T("keys.ctrl_c"),
	}, " · ") + "  "

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}

	bar := left + strings.Repeat(" ", gap) + right
	return a.theme.StatusBarStyle.Width(width).Render(bar)
}

// AppendUserMessage 添加用户消息到聊天面板
// AppendUserMessage adds a user message to the chat panel
func (a *App) AppendUserMessage(text string) {
	a.appendChat("\n" + a.theme.UserStyle.Render("👤 ") + text)
}

// Run 启动 Bubble Tea TUI
// Run starts the Bubble Tea TUI on one session.
func Run(ctx context.Context, s Session, model string) error {
	app := NewApp(ctx, s, model)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
