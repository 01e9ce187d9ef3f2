package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"sitebook/internal/model"
)

const batchSize = 50

const systemPrompt = `あなたは建設会社の原価管理担当です。見積・請求明細の名称から原価区分を判定します。
区分は labor(労務費), subcontract(外注費), material(材料費), machinery(機械経費), expense(経費) のいずれかです。
入力は {"items":[{"id":0,"name":"...","breakdown":"..."}]} 形式の JSON です。
出力は {"items":[{"id":0,"category":"..."}]} 形式の JSON のみを返してください。`

// Config LLM 分类器配置
type Config struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// LLMClassifier 通过 OpenAI 兼容接口归类费用明细
type LLMClassifier struct {
	client openai.Client
	model  string
	schema *jsonschema.Schema
	log    *zap.Logger
}

type promptItem struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Breakdown string `json:"breakdown,omitempty"`
}

type answer struct {
	Items []struct {
		ID       int    `json:"id"`
		Category string `json:"category"`
	} `json:"items"`
}

// NewLLMClassifier 缺少 API Key 或模型时返回 ErrDisabled
func NewLLMClassifier(cfg Config, log *zap.Logger) (*LLMClassifier, error) {
	if cfg.APIKey == "" || cfg.Model == "" {
		return nil, ErrDisabled
	}
	if log == nil {
		log = zap.NewNop()
	}
	schema, err := compileAnswerSchema()
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &LLMClassifier{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		schema: schema,
		log:    log,
	}, nil
}

func (c *LLMClassifier) Enabled() bool { return true }

// Refine 分批发送待归类明细。出错时已处理的批次保留，其余保持关键词结果
func (c *LLMClassifier) Refine(ctx context.Context, lines []model.LineItem) (int, error) {
	idx := pending(lines)
	refined := 0
	for start := 0; start < len(idx); start += batchSize {
		batch := idx[start:min(start+batchSize, len(idx))]
		n, err := c.refineBatch(ctx, lines, batch)
		refined += n
		if err != nil {
			c.log.Warn("classifier.refine_failed",
				zap.Int("batch_start", start),
				zap.Int("refined", refined),
				zap.Error(err))
			return refined, err
		}
	}
	if refined > 0 {
		c.log.Info("classifier.refined", zap.Int("pending", len(idx)), zap.Int("refined", refined))
	}
	return refined, nil
}

func (c *LLMClassifier) refineBatch(ctx context.Context, lines []model.LineItem, batch []int) (int, error) {
	items := make([]promptItem, len(batch))
	for i, li := range batch {
		items[i] = promptItem{ID: i, Name: lines[li].Name, Breakdown: lines[li].Breakdown}
	}
	user, err := json.Marshal(map[string]any{"items": items})
	if err != nil {
		return 0, fmt.Errorf("failed to encode prompt: %w", err)
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(string(user)),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to call chat completions: %w", err)
	}
	if len(resp.Choices) == 0 {
		return 0, fmt.Errorf("no choices in response")
	}

	ans, err := c.parseAnswer(resp.Choices[0].Message.Content)
	if err != nil {
		return 0, err
	}

	refined := 0
	for _, it := range ans.Items {
		if it.ID < 0 || it.ID >= len(batch) {
			continue
		}
		cat := model.CostCategory(it.Category)
		if !cat.Valid() || cat == model.CategoryExpense {
			continue
		}
		l := &lines[batch[it.ID]]
		l.Category = cat
		l.CategorySource = model.CategorySourceAI
		refined++
	}
	return refined, nil
}

// parseAnswer 去掉代码块围栏，修复常见 JSON 瑕疵后按 schema 校验
func (c *LLMClassifier) parseAnswer(content string) (answer, error) {
	var ans answer
	raw := stripFence(content)
	repaired, err := jsonrepair.RepairJSON(raw)
	if err != nil {
		return ans, fmt.Errorf("failed to repair response: %w", err)
	}

	var v any
	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		return ans, fmt.Errorf("failed to decode response: %w", err)
	}
	if err := c.schema.Validate(v); err != nil {
		return ans, fmt.Errorf("response does not match schema: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &ans); err != nil {
		return ans, fmt.Errorf("failed to decode response: %w", err)
	}
	return ans, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func compileAnswerSchema() (*jsonschema.Schema, error) {
	categories := make([]string, len(model.CostCategories))
	for i, c := range model.CostCategories {
		categories[i] = string(c)
	}
	schemaMap := map[string]any{
		"type":     "object",
		"required": []string{"items"},
		"properties": map[string]any{
			"items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []string{"id", "category"},
					"properties": map[string]any{
						"id":       map[string]any{"type": "integer"},
						"category": map[string]any{"enum": categories},
					},
				},
			},
		},
	}
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("answer.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("answer.json")
}
