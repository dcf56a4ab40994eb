package workflow

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/hupe1980/groupchat/agent"
	"github.com/hupe1980/groupchat/core"
	"github.com/hupe1980/groupchat/groupchat"
)

// FinanceName is the registry name of the finance workflow.
const FinanceName = "finance"

var (
	transactionAmounts = []int{500, 1500, 9999, 12000, 23000, 4000}
	transactionVendors = []string{"Staples", "Acme Corp", "CyberSins Ltd", "Initech", "Globex", "Unicorn LLC"}
	transactionMemos   = []string{"Quarterly supplies", "Confidential", "NDA services", "Routine payment", "Urgent request", "Reimbursement"}
)

// FinanceTemperature is the sampling temperature of the finance agents.
const FinanceTemperature = 0.2

const financeInstruction = `You are a financial compliance assistant. You will be given a set of transaction descriptions.
For each transaction:
- If it seems suspicious (e.g., amount > $10,000, vendor is unusual, memo is vague), ask the human agent for approval.
- Otherwise, approve it automatically.
Provide the full set of transactions to approve at one time.
If the human gives a general approval, it applies to all transactions requiring approval.
When all transactions are processed, summarize the results and say "You can type exit to finish".`

const summaryInstruction = `You are a financial summary assistant. You will be given a set of transaction details and their approval status.
Your task is to summarize the results of the transactions processed by the finance bot.
Generate a markdown table with the following columns:
- Vendor
- Memo
- Amount
- Status (Approved/Rejected)
The summary should include the total number of transactions, the number of approved transactions, and the number of rejected transactions.
The summary should be concise and clear.`

// Transaction renders one random transaction description.
func Transaction(r *rand.Rand) string {
	amount := transactionAmounts[r.IntN(len(transactionAmounts))]
	vendor := transactionVendors[r.IntN(len(transactionVendors))]
	memo := transactionMemos[r.IntN(len(transactionMemos))]
	return fmt.Sprintf("Transaction: $%d to %s. Memo: %s.", amount, vendor, memo)
}

// TransactionsPrompt renders n random transactions as the initial message.
func TransactionsPrompt(r *rand.Rand, n int) string {
	var b strings.Builder
	b.WriteString("Please process the following transactions one at a time:\n\n")
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, Transaction(r))
	}
	return b.String()
}

// Finance builds the approval workflow. The group manager picks every
// speaker, the human operator included; the operator finishes with "exit".
// The operator's message is replaced by three generated transactions.
func Finance(opts Options) (groupchat.Pattern, error) {
	temperature := FinanceTemperature
	financeBot, err := agent.New("finance_bot", func(o *agent.Options) {
		o.Description = "Financial compliance assistant that reviews transactions and asks the human to approve suspicious ones"
		o.Instruction = agent.NewInstructionFromText(financeInstruction)
		o.Temperature = &temperature
	})
	if err != nil {
		return groupchat.Pattern{}, err
	}
	summaryBot, err := agent.New("summary_bot", func(o *agent.Options) {
		o.Description = "Summarizes processed transactions and their approval status as a markdown table"
		o.Instruction = agent.NewInstructionFromText(summaryInstruction)
		o.Temperature = &temperature
	})
	if err != nil {
		return groupchat.Pattern{}, err
	}
	human, err := agent.New("human", func(o *agent.Options) {
		o.Description = "Human operator who approves or rejects suspicious transactions"
	})
	if err != nil {
		return groupchat.Pattern{}, err
	}

	// Sessions run concurrently and share opts.Rand.
	var randMu sync.Mutex
	manager := core.GroupManager()
	return groupchat.Pattern{
		Name:           FinanceName,
		InitialAgent:   financeBot.Name(),
		Agents:         []*agent.Agent{financeBot, summaryBot},
		GroupAfterWork: manager,
		UserAgent:      human,
		UserAfterWork:  &manager,
		MaxRounds:      20,
		Prompt: func(string) string {
			randMu.Lock()
			defer randMu.Unlock()
			return TransactionsPrompt(opts.Rand, 3)
		},
	}, nil
}
