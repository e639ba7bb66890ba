package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/AgentHub/app/models"
	"github.com/ManuelReschke/AgentHub/internal/pkg/completion"
	"github.com/ManuelReschke/AgentHub/internal/pkg/entitlements"
	"github.com/ManuelReschke/AgentHub/internal/pkg/ledger"
	"github.com/ManuelReschke/AgentHub/internal/pkg/metrics"
	"github.com/ManuelReschke/AgentHub/internal/pkg/pricing"
)

const (
	// HistoryWindow is the number of prior messages sent with each turn.
	HistoryWindow = 20
	// MaxKnowledgeChars caps the knowledge block.
	MaxKnowledgeChars = 12000
	titleChars        = 60
)

// State is a step of a chat turn.
type State string

const (
	StateValidating State = "validating"
	StateGenerating State = "generating"
	StateCosting    State = "costing"
	StatePersisting State = "persisting"
	StateBilling    State = "billing"
	StateDone       State = "done"
	StateRejected   State = "rejected"
)

var (
	ErrInsufficientCredits  = errors.New("chat: insufficient credits")
	ErrAccessDenied         = errors.New("chat: access denied")
	ErrAgentNotFound        = errors.New("chat: agent not found")
	ErrConversationNotFound = errors.New("chat: conversation not found")
)

// Ledger is the subset of ledger.Store a chat turn uses.
type Ledger interface {
	GetAccount(ctx context.Context, accountID uint) (*models.Account, error)
	GetAvailableCredits(ctx context.Context, accountID uint) (decimal.Decimal, error)
	Debit(ctx context.Context, accountID uint, amount decimal.Decimal) error
	RecordUsage(ctx context.Context, record *models.UsageRecord) error
}

type AccessChecker interface {
	CheckAccess(ctx context.Context, accountID uint, agent *models.Agent) (entitlements.Access, error)
}

// Agents loads agent configuration. Missing agents are gorm.ErrRecordNotFound.
type Agents interface {
	GetAgent(ctx context.Context, id uint) (*models.Agent, error)
	ListKnowledge(ctx context.Context, agentID uint) ([]models.AgentKnowledge, error)
}

// Conversations stores chat history. Missing conversations are gorm.ErrRecordNotFound.
type Conversations interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, conversation *models.Conversation) error
	// RecentMessages returns the last limit messages in chronological order.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	AppendMessages(ctx context.Context, messages ...*models.Message) error
}

type Generator interface {
	Generate(ctx context.Context, req completion.Request) (*completion.Result, error)
}

type PricingSource interface {
	PricingModel(ctx context.Context) (*pricing.Model, error)
}

// Request is one user message.
type Request struct {
	AgentID        uint   `json:"agent_id" validate:"required,gt=0"`
	Message        string `json:"message" validate:"required,max=32000"`
	ConversationID string `json:"conversation_id" validate:"omitempty,uuid"`
}

// Reply is the result of a completed turn.
type Reply struct {
	Reply            string          `json:"reply"`
	ConversationID   string          `json:"conversation_id"`
	AvailableCredits decimal.Decimal `json:"available_credits"`
	Cost             decimal.Decimal `json:"cost"`
	Usage            pricing.Usage   `json:"usage"`
}

type Engine struct {
	ledger        Ledger
	access        AccessChecker
	agents        Agents
	conversations Conversations
	generator     Generator
	pricing       PricingSource
}

func NewEngine(l Ledger, access AccessChecker, agents Agents, conversations Conversations, generator Generator, pricing PricingSource) *Engine {
	return &Engine{
		ledger:        l,
		access:        access,
		agents:        agents,
		conversations: conversations,
		generator:     generator,
		pricing:       pricing,
	}
}

// turn carries the working state of one Send call.
type turn struct {
	state        State
	account      *models.Account
	agent        *models.Agent
	conversation *models.Conversation
	history      []completion.Message
	knowledge    string
}

// Send runs one chat turn. Validation failures return before anything is
// generated. Once a reply exists it is returned even if billing fails.
func (e *Engine) Send(ctx context.Context, accountID uint, req Request) (*Reply, error) {
	t := &turn{state: StateValidating}
	reply, err := e.send(ctx, t, accountID, req)
	outcome := string(t.state)
	if err != nil && t.state == StateValidating {
		outcome = string(StateRejected)
	} else if err != nil {
		outcome = "upstream_error"
	}
	metrics.ChatTurns.WithLabelValues(outcome).Inc()
	return reply, err
}

func (e *Engine) send(ctx context.Context, t *turn, accountID uint, req Request) (*Reply, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, errors.New("chat: message is required")
	}
	if err := e.validate(ctx, t, accountID, req); err != nil {
		return nil, err
	}

	t.state = StateGenerating
	result, err := e.generator.Generate(ctx, completion.Request{
		Model:     t.agent.Model,
		System:    t.agent.SystemInstructions,
		Knowledge: t.knowledge,
		History:   t.history,
		Message:   message,
	})
	if err != nil {
		log.Warnf("[Chat] generation failed account=%d agent=%d: %v", accountID, t.agent.ID, err)
		return nil, err
	}

	t.state = StateCosting
	usage, estimated := e.usage(t, message, result)
	if estimated {
		metrics.EstimatedUsage.Inc()
	}
	// The recorded model is the one priced.
	model := t.agent.Model
	if result.Model != "" {
		model = result.Model
	}
	cost := e.cost(ctx, model, usage)

	t.state = StatePersisting
	record := e.persist(ctx, t, accountID, message, result.Text, model, usage, estimated, cost)

	t.state = StateBilling
	if err := e.ledger.Debit(ctx, accountID, cost); err != nil {
		reason := "error"
		if errors.Is(err, ledger.ErrInsufficientCredits) {
			reason = "insufficient_credits"
		}
		metrics.BillingFailures.WithLabelValues(reason).Inc()
		log.Errorf("[Billing] debit failed account=%d agent=%d cost=%s usage_record=%d: %v",
			accountID, t.agent.ID, cost.String(), record.ID, err)
	} else {
		metrics.AddDebited(cost)
	}

	available, err := e.ledger.GetAvailableCredits(ctx, accountID)
	if err != nil {
		log.Warnf("[Chat] could not reload balance of account=%d: %v", accountID, err)
		available = decimal.Max(decimal.Zero, t.account.AvailableCredits().Sub(cost))
	}

	t.state = StateDone
	return &Reply{
		Reply:            result.Text,
		ConversationID:   t.conversation.ID,
		AvailableCredits: available,
		Cost:             cost,
		Usage:            usage,
	}, nil
}

func (e *Engine) validate(ctx context.Context, t *turn, accountID uint, req Request) error {
	account, err := e.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.IsActive() {
		return ErrAccessDenied
	}
	if !account.AvailableCredits().IsPositive() {
		return ErrInsufficientCredits
	}
	t.account = account

	agent, err := e.agents.GetAgent(ctx, req.AgentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAgentNotFound
		}
		return err
	}
	access, err := e.access.CheckAccess(ctx, accountID, agent)
	if err != nil {
		return err
	}
	if !access.Allowed() {
		return ErrAccessDenied
	}
	t.agent = agent

	if id := strings.TrimSpace(req.ConversationID); id != "" {
		conv, err := e.conversations.GetConversation(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrConversationNotFound
			}
			return err
		}
		if conv.AccountID != accountID || conv.AgentID != agent.ID {
			return ErrConversationNotFound
		}
		messages, err := e.conversations.RecentMessages(ctx, conv.ID, HistoryWindow)
		if err != nil {
			return err
		}
		t.conversation = conv
		for _, m := range messages {
			t.history = append(t.history, completion.Message{Role: m.Role, Content: m.Content})
		}
	}

	knowledge, err := e.agents.ListKnowledge(ctx, agent.ID)
	if err != nil {
		return err
	}
	t.knowledge = BuildKnowledge(knowledge, MaxKnowledgeChars)
	return nil
}

// usage returns reported token counts, or a character based estimate of
// everything sent and received when the provider reported none.
func (e *Engine) usage(t *turn, message string, result *completion.Result) (pricing.Usage, bool) {
	if result.Usage != nil && result.Usage.Total() > 0 {
		return *result.Usage, false
	}
	var prompt strings.Builder
	prompt.WriteString(t.agent.SystemInstructions)
	prompt.WriteString(t.knowledge)
	for _, m := range t.history {
		prompt.WriteString(m.Content)
	}
	prompt.WriteString(message)
	return pricing.Usage{
		InputTokens:  pricing.EstimateTokens(prompt.String()),
		OutputTokens: pricing.EstimateTokens(result.Text),
	}, true
}

func (e *Engine) cost(ctx context.Context, model string, usage pricing.Usage) decimal.Decimal {
	pm, err := e.pricing.PricingModel(ctx)
	if err != nil || pm == nil {
		log.Warnf("[Chat] pricing settings unavailable, using defaults: %v", err)
		pm = pricing.New(pricing.Config{})
	}
	return pm.CostWithUsage(model, usage)
}

// persist writes the conversation, both messages and the usage record.
// Failures are logged and do not stop billing.
func (e *Engine) persist(ctx context.Context, t *turn, accountID uint, message, reply, model string, usage pricing.Usage, estimated bool, cost decimal.Decimal) *models.UsageRecord {
	if t.conversation == nil {
		t.conversation = &models.Conversation{
			ID:        uuid.NewString(),
			AccountID: accountID,
			AgentID:   t.agent.ID,
			Title:     conversationTitle(message),
		}
		if err := e.conversations.CreateConversation(ctx, t.conversation); err != nil {
			log.Errorf("[Chat] failed to create conversation for account=%d: %v", accountID, err)
		}
	}

	now := time.Now()
	if err := e.conversations.AppendMessages(ctx,
		&models.Message{ConversationID: t.conversation.ID, Role: models.MessageRoleUser, Content: message, CreatedAt: now},
		&models.Message{ConversationID: t.conversation.ID, Role: models.MessageRoleAssistant, Content: reply, CreatedAt: now.Add(time.Millisecond)},
	); err != nil {
		log.Errorf("[Chat] failed to store messages of conversation=%s: %v", t.conversation.ID, err)
	}

	record := &models.UsageRecord{
		AccountID:      accountID,
		AgentID:        t.agent.ID,
		ConversationID: t.conversation.ID,
		Model:          model,
		InputTokens:    usage.InputTokens,
		OutputTokens:   usage.OutputTokens,
		CachedTokens:   usage.CachedInputTokens,
		TotalTokens:    usage.Total(),
		Estimated:      estimated,
		CacheHit:       usage.CachedInputTokens > 0,
		Cost:           cost,
	}
	if err := e.ledger.RecordUsage(ctx, record); err != nil {
		metrics.BillingFailures.WithLabelValues("usage_record").Inc()
		log.Errorf("[Billing] failed to record usage account=%d agent=%d cost=%s: %v", accountID, t.agent.ID, cost.String(), err)
	}
	return record
}

// BuildKnowledge concatenates knowledge entries in order and stops at limit characters.
func BuildKnowledge(entries []models.AgentKnowledge, limit int) string {
	var b strings.Builder
	remaining := limit
	for _, k := range entries {
		content := strings.TrimSpace(k.Content)
		if content == "" {
			continue
		}
		block := content
		if title := strings.TrimSpace(k.Title); title != "" {
			block = "## " + title + "\n" + content
		}
		if b.Len() > 0 {
			block = "\n\n" + block
		}
		if utf8.RuneCountInString(block) > remaining {
			block = string([]rune(block)[:remaining])
		}
		b.WriteString(block)
		remaining -= utf8.RuneCountInString(block)
		if remaining <= 0 {
			break
		}
	}
	return b.String()
}

func conversationTitle(message string) string {
	title := strings.Join(strings.Fields(message), " ")
	if utf8.RuneCountInString(title) > titleChars {
		title = string([]rune(title)[:titleChars]) + "..."
	}
	return title
}
