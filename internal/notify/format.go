package notify

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"trade_engine/internal/models"
)

func FormatSignal(s models.Signal) string {
	emoji := "🟢"
	if s.Action == models.ActionSell {
		emoji = "🔴"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s* %s `%s`\n", emoji, strings.ToUpper(string(s.Action)), s.Symbol, s.Exchange)
	fmt.Fprintf(&b, "Strategy: `%s` rev %d\n", s.StrategyID, s.Revision)
	fmt.Fprintf(&b, "Price: `%s`  Qty: `%s`\n", f(s.SuggestedPrice), f(s.SuggestedQuantity))
	if s.StopLoss > 0 || s.TakeProfit > 0 {
		fmt.Fprintf(&b, "SL: `%s`  TP: `%s`\n", f(s.StopLoss), f(s.TakeProfit))
	}
	fmt.Fprintf(&b, "Confidence: `%.0f%%`\n", s.Confidence*100)
	if len(s.Basis) > 0 {
		keys := make([]string, 0, len(s.Basis))
		for k := range s.Basis {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: `%s`\n", k, f(s.Basis[k]))
		}
	}
	b.WriteString(s.GeneratedAt.UTC().Format(time.RFC3339))
	return b.String()
}

func FormatStatus(st models.BotStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Status*\nUptime: `%s`\nStrategies: `%d`\nSessions: `%d`\n",
		st.Uptime.Truncate(time.Second), st.ActiveStrategies, st.ActiveSessions)
	if !st.LastSignalAt.IsZero() {
		fmt.Fprintf(&b, "Last signal: `%s`\n", st.LastSignalAt.UTC().Format(time.RFC3339))
	}
	if len(st.Stale) > 0 {
		fmt.Fprintf(&b, "Stale feeds: `%s`\n", strings.Join(st.Stale, ", "))
	}
	return b.String()
}

func f(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
