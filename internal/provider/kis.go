package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"oneil/internal/ratelimit"
	"oneil/pkg/model"
)

const (
	kisDailyChartPath = "/uapi/domestic-stock/v1/quotations/inquire-daily-itemchartprice"
	kisDailyChartTrID = "FHKST03010100"

	// The daily chart endpoint returns at most 100 rows per call, so
	// long ranges are fetched in chunks of this many calendar days.
	kisChunkDays = 100
)

// KISProvider fetches KOSPI daily bars from the KIS OpenAPI.
type KISProvider struct {
	creds    KISCredentials
	tokenMgr *kisTokenManager
	client   *http.Client
	limiter  *ratelimit.Limiter
}

// NewKISProvider creates a KIS domestic data provider
func NewKISProvider(creds KISCredentials) *KISProvider {
	return &KISProvider{
		creds:    creds,
		tokenMgr: newKISTokenManager(creds),
		client:   &http.Client{Timeout: 30 * time.Second},
		limiter:  ratelimit.NewLimiter("kis", 300), // 5/sec
	}
}

func (p *KISProvider) Name() string {
	return "kis-domestic"
}

func (p *KISProvider) Market() model.Market {
	return model.MarketKR
}

func (p *KISProvider) IsAvailable() bool {
	return p.creds.AppKey != "" && p.creds.AppSecret != ""
}

func (p *KISProvider) RateLimit() int {
	return 300
}

// kisChartResponse is the daily chart API response. Rows come newest
// first.
type kisChartResponse struct {
	RtCd    string `json:"rt_cd"` // "0" on success
	MsgCd   string `json:"msg_cd"`
	Msg1    string `json:"msg1"`
	Output2 []struct {
		STCK_BSOP_DATE string `json:"stck_bsop_date"` // YYYYMMDD
		STCK_OPRC      string `json:"stck_oprc"`
		STCK_HGPR      string `json:"stck_hgpr"`
		STCK_LWPR      string `json:"stck_lwpr"`
		STCK_CLPR      string `json:"stck_clpr"`
		ACML_VOL       string `json:"acml_vol"`
	} `json:"output2"`
}

// GetDailyCandles fetches KOSPI daily bars for [start, end], oldest
// first, chunking the range to stay under the endpoint's row cap.
func (p *KISProvider) GetDailyCandles(ctx context.Context, symbol string, start, end time.Time) ([]model.Candle, error) {
	var candles []model.Candle

	for chunkEnd := end; !chunkEnd.Before(start); chunkEnd = chunkEnd.AddDate(0, 0, -kisChunkDays) {
		chunkStart := chunkEnd.AddDate(0, 0, -kisChunkDays+1)
		if chunkStart.Before(start) {
			chunkStart = start
		}

		chunk, err := p.fetchChunk(ctx, symbol, chunkStart, chunkEnd)
		if err != nil {
			// One retry after a cooldown when the API pushed back.
			var perr *ProviderError
			if errors.As(err, &perr) && perr.Retryable {
				if cerr := p.limiter.Cooldown(ctx); cerr != nil {
					return nil, cerr
				}
				chunk, err = p.fetchChunk(ctx, symbol, chunkStart, chunkEnd)
			}
			if err != nil {
				return nil, err
			}
		}
		candles = append(candles, chunk...)
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Time.Before(candles[j].Time)
	})
	return candles, nil
}

func (p *KISProvider) fetchChunk(ctx context.Context, symbol string, start, end time.Time) ([]model.Candle, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	token, err := p.tokenMgr.Token(ctx)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("get token: %w", err), Retryable: false}
	}

	params := fmt.Sprintf("?FID_COND_MRKT_DIV_CODE=J&FID_INPUT_ISCD=%s&FID_INPUT_DATE_1=%s&FID_INPUT_DATE_2=%s&FID_PERIOD_DIV_CODE=D&FID_ORG_ADJ_PRC=0",
		symbol, start.Format("20060102"), end.Format("20060102"))

	req, err := http.NewRequestWithContext(ctx, "GET", kisBaseURL+kisDailyChartPath+params, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("authorization", "Bearer "+token)
	req.Header.Set("appkey", p.creds.AppKey)
	req.Header.Set("appsecret", p.creds.AppSecret)
	req.Header.Set("tr_id", kisDailyChartTrID)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: err, Retryable: true}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		p.limiter.SignalRateLimited()
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("rate limited"), Retryable: true}
	}
	if resp.StatusCode == http.StatusUnauthorized {
		p.tokenMgr.Invalidate()
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("unauthorized"), Retryable: true}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(body)), Retryable: false}
	}

	p.limiter.ResetBackoff()

	var chart kisChartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if chart.RtCd != "0" {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("[%s] %s", chart.MsgCd, chart.Msg1), Retryable: false}
	}

	candles := make([]model.Candle, 0, len(chart.Output2))
	for _, item := range chart.Output2 {
		if item.STCK_BSOP_DATE == "" {
			continue
		}
		t, err := time.Parse("20060102", item.STCK_BSOP_DATE)
		if err != nil {
			continue
		}

		close_ := parseKISFloat(item.STCK_CLPR)
		if close_ <= 0 {
			continue
		}

		candles = append(candles, model.Candle{
			Time:   t,
			Open:   parseKISFloat(item.STCK_OPRC),
			High:   parseKISFloat(item.STCK_HGPR),
			Low:    parseKISFloat(item.STCK_LWPR),
			Close:  close_,
			Volume: int64(parseKISFloat(item.ACML_VOL)),
		})
	}
	return candles, nil
}

func parseKISFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
