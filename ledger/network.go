package ledger

import "fmt"

type Action string

const (
	ActionCreateLoanRequest Action = "create_loan_request"
	ActionUploadMetadata    Action = "upload_metadata"
	ActionSetLoanTerms      Action = "set_loan_terms"
	ActionFundLoan          Action = "fund_loan"
	ActionRepayInstallment  Action = "repay_installment"
)

// Network describes a supported chain and its fee characteristics.
type Network struct {
	ID              string
	Name            string
	GasToken        string
	GasPerTx        float64 // in GasToken
	NetworkFeeUSD   float64
	ProcessingTime  string
	ContractAddress string
	GasUnit         string
	ActionGas       map[Action]int
}

var networks = map[string]Network{
	"solana": {
		ID:              "solana",
		Name:            "Solana",
		GasToken:        "SOL",
		GasPerTx:        0.0001,
		NetworkFeeUSD:   0.01,
		ProcessingTime:  "1-2 seconds",
		ContractAddress: "DeFi1oan2Micro3Finance4Program5Address6789",
		GasUnit:         "compute units",
		ActionGas: map[Action]int{
			ActionCreateLoanRequest: 5000,
			ActionUploadMetadata:    2000,
			ActionSetLoanTerms:      3000,
			ActionFundLoan:          5000,
			ActionRepayInstallment:  5000,
		},
	},
	"ethereum": {
		ID:              "ethereum",
		Name:            "Ethereum",
		GasToken:        "ETH",
		GasPerTx:        0.002,
		NetworkFeeUSD:   12.50,
		ProcessingTime:  "2-5 minutes",
		ContractAddress: "0x742d35Cc6634C0532925a3b8D4C0532925a3b8D4",
		GasUnit:         "gas",
		ActionGas: map[Action]int{
			ActionCreateLoanRequest: 45000,
			ActionUploadMetadata:    21000,
			ActionSetLoanTerms:      32000,
			ActionFundLoan:          45000,
			ActionRepayInstallment:  45000,
		},
	},
}

// LookupNetwork returns the network with the given id.
func LookupNetwork(id string) (Network, error) {
	n, ok := networks[id]
	if !ok {
		return Network{}, fmt.Errorf("%w: %q", ErrUnknownNetwork, id)
	}
	return n, nil
}

type ActionFee struct {
	Action Action
	Gas    int
}

// FeeEstimate is what a borrower or lender sees before signing.
type FeeEstimate struct {
	Network       string
	GasToken      string
	GasPerTx      float64
	NetworkFeeUSD float64
	GasUnit       string
	Actions       []ActionFee
}

// loanCreationActions are the contract calls behind a new loan request.
var loanCreationActions = []Action{ActionCreateLoanRequest, ActionUploadMetadata, ActionSetLoanTerms}

func EstimateFees(networkID string) (FeeEstimate, error) {
	n, err := LookupNetwork(networkID)
	if err != nil {
		return FeeEstimate{}, err
	}
	est := FeeEstimate{
		Network:       n.ID,
		GasToken:      n.GasToken,
		GasPerTx:      n.GasPerTx,
		NetworkFeeUSD: n.NetworkFeeUSD,
		GasUnit:       n.GasUnit,
	}
	for _, a := range loanCreationActions {
		est.Actions = append(est.Actions, ActionFee{Action: a, Gas: n.ActionGas[a]})
	}
	return est, nil
}
