package funding

import (
	"github.com/shopspring/decimal"
)

// Summarize folds a transaction set into its summary in a single pass, so every
// field reflects the same snapshot.
func Summarize(txs []Transaction) FundingSummary {
	summary := FundingSummary{
		TotalRevenue:   decimal.Zero,
		TotalDonations: decimal.Zero,
	}

	for i := range txs {
		tx := &txs[i]
		switch tx.Type {
		case TypeCarbonIssue:
			if tx.Quantity != nil {
				summary.TotalCreditsIssued += *tx.Quantity
			}
		case TypeCarbonSale:
			if tx.Quantity != nil {
				summary.TotalCreditsSold += *tx.Quantity
			}
			summary.TotalRevenue = summary.TotalRevenue.Add(tx.Amount)
		case TypeDonation:
			summary.TotalDonations = summary.TotalDonations.Add(tx.Amount)
			summary.DonorCount++
		}
	}

	summary.AvailableCredits = summary.TotalCreditsIssued - summary.TotalCreditsSold
	return summary
}

func toViews(txs []Transaction) []TransactionView {
	views := make([]TransactionView, len(txs))
	for i := range txs {
		views[i] = TransactionView{
			Transaction: txs[i],
			TypeDisplay: txs[i].Type.Display(),
		}
	}
	return views
}
