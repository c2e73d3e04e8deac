package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mingyu-ho/invoice-pipeline/internal/llm"
)

// ExtractFields implements llm.VisionExtractor against the OpenAI
// chat/completions endpoint. The first page image goes in as a data
// URL; the response is sanitized, schema-validated, then decoded.
func (c *Client) ExtractFields(ctx context.Context, req llm.ExtractRequest) (llm.InvoiceFields, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"image_bytes", len(req.ImagePNG),
		"missing", req.Missing,
		"file_hint", req.FilenameHint,
	)

	if len(req.ImagePNG) == 0 {
		return llm.InvoiceFields{}, nil, fmt.Errorf("empty page image")
	}

	schema := llm.BuildInvoiceJSONSchema()
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(req.ImagePNG)

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"max_tokens":      500,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt(req.Missing)},
			{"role": "user", "content": []map[string]any{
				{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
				{"type": "text", "text": userPrompt(req.FilenameHint)},
			}},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, httpErr := c.postWithRetry(ctx, rid, endpoint, body)
	if httpErr != nil {
		c.log.Error("llm.extract.http_error",
			"req_id", rid, "error", httpErr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.InvoiceFields{}, nil, httpErr
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
				Refusal string `json:"refusal"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Error("llm.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.InvoiceFields{}, raw, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.log.Error("llm.extract.no_choices", "req_id", rid, "raw", string(raw))
		return llm.InvoiceFields{}, raw, fmt.Errorf("no choices in openai response")
	}
	if r := cc.Choices[0].Message.Refusal; r != "" {
		c.log.Warn("llm.extract.refused", "req_id", rid, "refusal", r)
		return llm.InvoiceFields{}, raw, fmt.Errorf("model refused: %s", r)
	}

	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	cleaned, dropped, err := llm.NormalizeAndSanitizeJSON([]byte(content), c.log)
	if err != nil {
		c.log.Error("llm.extract.sanitize_failed", "req_id", rid, "error", err, "content", content)
		return llm.InvoiceFields{}, []byte(content), fmt.Errorf("sanitize model output: %w", err)
	}
	if err := llm.ValidateJSONAgainstSchema(schema, cleaned); err != nil {
		c.log.Error("llm.extract.schema_validation_failed",
			"req_id", rid, "error", err, "content", string(cleaned),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.InvoiceFields{}, cleaned, fmt.Errorf("schema validation failed: %w", err)
	}

	var out llm.InvoiceFields
	if err := json.Unmarshal(cleaned, &out); err != nil {
		return llm.InvoiceFields{}, cleaned, fmt.Errorf("unmarshal fields: %w", err)
	}

	c.log.Info("llm.extract.ok",
		"req_id", rid,
		"number", out.InvoiceNumber,
		"amount", out.Amount,
		"kind", out.InvoiceKind,
		"category", out.Category,
		"dropped", len(dropped),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, cleaned, nil
}

// postWithRetry applies the rate limiter and the explicit retry policy:
// RetryMax attempts total, exponential backoff, only transient failures
// (429, 5xx, transport errors) are retried. The default RetryMax of 1
// means a single failed attempt surfaces immediately.
func (c *Client) postWithRetry(ctx context.Context, rid, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	backoff := 500 * time.Millisecond
	var lastErr error
	for attempt := 1; attempt <= c.cfg.RetryMax; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		raw, retryable, err := c.post(ctx, url, b)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !retryable || attempt == c.cfg.RetryMax {
			return nil, lastErr
		}

		c.log.Warn("llm.extract.retry",
			"req_id", rid, "attempt", attempt, "max", c.cfg.RetryMax,
			"backoff_ms", backoff.Milliseconds(), "error", err,
		)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (c *Client) post(ctx context.Context, url string, body []byte) (raw []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("openai http error: %w", err)
	}
	defer func(rc io.ReadCloser) {
		if cerr := rc.Close(); cerr != nil {
			c.log.Warn("openai response body close error", "error", cerr)
		}
	}(resp.Body)

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("openai status %d: %s", resp.StatusCode, buf.String())
	}
	return buf.Bytes(), false, nil
}

func systemPrompt(missing []string) string {
	parts := []string{
		"你是一个专业的中国发票识别助手。仔细分析发票图片，严格按照提供的 JSON Schema 提取信息。",
		"无法找到或无法确定的字段请直接省略，不要输出 null。",
		"invoice_kind 只能是 '普票' 或 '专票'（普通发票为普票，专用发票为专票）。",
		"amount 为价税合计的小写金额，以字符串返回，例如 '198.00'。",
		"category 为主要货物或服务名称，例如 '信息技术服务'、'住宿服务'。多个项目时选最主要的一个。",
		"invoice_date 使用 YYYY-MM-DD 格式。",
	}
	if len(missing) > 0 {
		parts = append(parts, "重点补全以下字段: "+strings.Join(missing, ", ")+"。")
	}
	return strings.Join(parts, " ")
}

func userPrompt(filenameHint string) string {
	var b strings.Builder
	b.WriteString("请从这张发票图片中提取关键信息。")
	if filenameHint != "" {
		b.WriteString(" 文件名: ")
		b.WriteString(filenameHint)
	}
	return b.String()
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
