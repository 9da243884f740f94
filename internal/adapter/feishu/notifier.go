package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"skill-radar/internal/common"
	"skill-radar/internal/domain"
)

type Notifier struct {
	webhookURL string
	http       *http.Client
}

func NewNotifier(webhook string) *Notifier {
	if webhook == "" {
		log.Println("⚠️ 警告: 飞书 Webhook 为空,推送功能将无法工作!")
	}
	return &Notifier{
		webhookURL: webhook,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

// apiError 飞书侧拒绝请求;4xx 重试也不会变好,5xx 才值得再试
type apiError struct {
	status int
}

func (e *apiError) Error() string {
	return fmt.Sprintf("飞书 API 报错: 状态码 %d", e.status)
}

func retryable(err error) bool {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.status >= 500
	}
	// 网络层错误 (超时、连接被拒) 一律重试
	return true
}

// Notify 发送危险仓库告警卡片 (飞书 Schema 2.0)
func (n *Notifier) Notify(ctx context.Context, repo *domain.Repo) error {
	if n.webhookURL == "" {
		return common.NewError(common.ErrCodeNotification, "Webhook URL 为空")
	}

	body, err := json.Marshal(n.buildCard(repo))
	if err != nil {
		return common.WrapError(common.ErrCodeNotification, "构造飞书卡片失败", err)
	}

	err = common.Do(ctx, func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("Content-Type", "application/json")

		resp, postErr := n.http.Do(req)
		if postErr != nil {
			return postErr
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return &apiError{status: resp.StatusCode}
		}
		return nil
	},
		common.WithMaxRetries(2),
		common.WithInitialDelay(500*time.Millisecond),
		common.WithRetryIf(retryable),
	)
	if err != nil {
		return common.WrapError(common.ErrCodeNotification, "飞书告警推送失败", err)
	}

	return nil
}

// buildCard 组装告警卡片的 JSON 结构
func (n *Notifier) buildCard(repo *domain.Repo) map[string]interface{} {
	title := fmt.Sprintf("🚨 发现危险技能仓库: %s", repo.FullName)

	riskNote := repo.AIRiskNote
	if riskNote == "" {
		riskNote = "尚未生成,请先人工审查 scripts/ 目录再决定是否使用。"
	}

	mdContent := fmt.Sprintf(`**⭐ Stars:** %d  |  **语言:** %s  |  **分类:** %s
**🏷️ 信号:** %s

**📝 项目描述:**
%s

**🤖 AI 风险点评:**
%s
`,
		repo.Stars, repo.Language, repo.Category,
		strings.Join(repo.Signals, ", "),
		repo.Description,
		riskNote)

	return map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"schema": "2.0",
			"config": map[string]interface{}{
				"update_multi": true,
			},
			"header": map[string]interface{}{
				"title": map[string]interface{}{
					"tag":     "plain_text",
					"content": title,
				},
				"template": "red",
			},
			"body": map[string]interface{}{
				"direction": "vertical",
				"elements": []map[string]interface{}{
					{
						"tag":       "markdown",
						"content":   mdContent,
						"text_size": "normal",
					},
					{
						"tag": "button",
						"text": map[string]interface{}{
							"tag":     "plain_text",
							"content": "🔗 查看源码",
						},
						"type": "primary",
						"behaviors": []map[string]interface{}{
							{
								"type":        "open_url",
								"default_url": repo.URL,
							},
						},
					},
				},
			},
		},
	}
}
