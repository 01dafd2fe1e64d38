package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"skinarb/internal/app"
)

var (
	simulateChatID   int64
	simulateItem     string
	simulateBuff     float64
	simulateCGM      float64
	simulateSkinport float64
	simulateUSDRUB   float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Send a simulated alert through the notification channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateChatID == 0 {
			return fmt.Errorf("--chat-id is required")
		}

		opts := app.SimulateOptions{
			ChatID:      simulateChatID,
			ItemName:    simulateItem,
			BuffUSD:     decimal.NewFromFloat(simulateBuff),
			CGMUSD:      decimal.NewFromFloat(simulateCGM),
			SkinportUSD: decimal.NewFromFloat(simulateSkinport),
			USDRUB:      decimal.NewFromFloat(simulateUSDRUB),
		}

		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().Int64Var(&simulateChatID, "chat-id", 0, "Telegram chat to notify")
	simulateCmd.Flags().StringVar(&simulateItem, "item", "★ Karambit | Doppler (Factory New)", "Item name for the message")
	simulateCmd.Flags().Float64Var(&simulateBuff, "buff", 10, "Buff buy price in USD")
	simulateCmd.Flags().Float64Var(&simulateCGM, "cgm", 12, "CSGOMarket sell price in USD")
	simulateCmd.Flags().Float64Var(&simulateSkinport, "skinport", 0, "Skinport sell price in USD")
	simulateCmd.Flags().Float64Var(&simulateUSDRUB, "usd-rub", 90, "Display rate for RUB figures")
}
