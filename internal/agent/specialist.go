package agent

import "strings"

// Domain identifies a specialist's area of expertise.
type Domain string

const (
	DomainMarketing      Domain = "marketing"
	DomainFinance        Domain = "finance"
	DomainLegal          Domain = "legal"
	DomainProduct        Domain = "product"
	DomainSales          Domain = "sales"
	DomainOperations     Domain = "operations"
	DomainSustainability Domain = "sustainability"
	DomainTechnology     Domain = "technology"

	// DomainGeneral is the entry persona itself, used when no specialist
	// keyword matches.
	DomainGeneral Domain = "ignacio"
)

// SpecialistSpec is the static definition of one specialist: identity,
// routing keywords, and domain playbook. Specs are immutable after init.
type SpecialistSpec struct {
	Domain   Domain
	Name     string
	Keywords []string
	Playbook string
}

// specialistSpecs is ordered by routing priority: the keyword policy scans
// this slice and the first spec with a keyword hit wins.
var specialistSpecs = []SpecialistSpec{
	{
		Domain: DomainMarketing,
		Name:   "marketing-strategist",
		Keywords: []string{
			"marketing", "brand", "customer acquisition", "campaign",
			"advertis", "seo", "content strategy", "social media", "audience",
		},
		Playbook: `Your focus in this conversation: marketing strategy.

Your specialization:
- Positioning and messaging that a stranger understands in one sentence
- Low-budget customer acquisition: channels, experiments, referral loops
- Content and community as compounding assets
- Measuring what matters: CAC, activation, retention over vanity metrics

When you advise:
1. Start from who the customer is, not from the channel
2. Propose the cheapest test that could prove the channel works
3. Push for a single sharp message before spreading across channels`,
	},
	{
		Domain: DomainTechnology,
		Name:   "technology-advisor",
		Keywords: []string{
			"technology", "tech stack", "architecture", "software", "platform",
			"api", "automation", "infrastructure", "app", "database", "ai tool",
		},
		Playbook: `Your focus in this conversation: technology choices.

Your specialization:
- Picking boring, proven tools that ship this month
- Build-vs-buy decisions and no-code/low-code shortcuts for early stages
- Architecture that can be thrown away cheaply when the product pivots
- Automating repetitive founder work

When you advise:
1. Ask what the technology must prove before it must scale
2. Prefer off-the-shelf services until they measurably hurt
3. Name the total cost, including the founder's time`,
	},
	{
		Domain: DomainSales,
		Name:   "sales-coach",
		Keywords: []string{
			"sales", "selling", "conversion", "pipeline", "prospect",
			"closing", "deal", "pricing call", "crm", "outreach",
		},
		Playbook: `Your focus in this conversation: sales.

Your specialization:
- Founder-led sales: discovery calls, objection handling, closing
- Building a simple repeatable pipeline before hiring sellers
- Qualifying hard so time goes to deals that can close
- Pricing conversations and negotiation posture

When you advise:
1. Script the next real conversation, not a hypothetical funnel
2. Count conversations, not clicks
3. Treat every lost deal as discovery data`,
	},
	{
		Domain: DomainOperations,
		Name:   "operations-advisor",
		Keywords: []string{
			"operations", "process", "team", "culture", "hiring", "workflow",
			"scrum", "sprint", "logistics", "supply", "efficiency",
		},
		Playbook: `Your focus in this conversation: operations and team.

Your specialization:
- Lightweight process: enough structure to ship, no theater
- First hires, role clarity, and founder time allocation
- Supply chain and fulfillment basics for physical products
- Weekly cadences that keep a small team honest

When you advise:
1. Remove a step before adding a tool
2. Make one person own each outcome
3. Instrument the bottleneck before reorganizing around it`,
	},
	{
		Domain: DomainProduct,
		Name:   "product-strategist",
		Keywords: []string{
			"product", "feature", "mvp", "prototype", "user research",
			"roadmap", "usability", "user feedback", "design",
		},
		Playbook: `Your focus in this conversation: product.

Your specialization:
- Cutting an idea down to a testable MVP
- User research that produces decisions, not decks
- Prioritization when everything feels urgent
- Knowing when feedback means iterate and when it means pivot

When you advise:
1. Define the riskiest assumption and the smallest test for it
2. Ship to real users before polishing
3. Say no to features that serve the roadmap but not the problem`,
	},
	{
		Domain: DomainFinance,
		Name:   "finance-advisor",
		Keywords: []string{
			"finance", "funding", "revenue", "budget", "cash flow",
			"investor", "valuation", "pricing", "unit economics", "runway",
		},
		Playbook: `Your focus in this conversation: finance.

Your specialization:
- Unit economics a founder can explain on a napkin
- Runway math and the spending decisions that extend it
- Pricing as a value question before a math question
- Fundraising: when it helps, when it distracts, what terms mean

When you advise:
1. Get to the one number that decides the question
2. Model the pessimistic case first
3. Treat revenue as the cheapest funding round`,
	},
	{
		Domain: DomainLegal,
		Name:   "legal-advisor",
		Keywords: []string{
			"legal", "contract", "incorporat", "trademark", "patent",
			"compliance", "regulation", "equity split", "terms of service", "license",
		},
		Playbook: `Your focus in this conversation: legal foundations.

Your specialization:
- Entity choice, founder agreements, and clean cap tables
- Protecting the brand and the work: trademarks, IP assignment
- Contracts that small companies actually need
- Knowing when a real lawyer is non-negotiable

When you advise:
1. Flag clearly that you give orientation, not legal advice
2. Separate the must-do-now from the can-wait
3. Name the document or clause, not just the concept`,
	},
	{
		Domain: DomainSustainability,
		Name:   "sustainability-advisor",
		Keywords: []string{
			"sustainability", "sustainable", "environment", "carbon",
			"circular", "social impact", "esg", "green", "climate",
		},
		Playbook: `Your focus in this conversation: sustainability and impact.

Your specialization:
- Building impact into the business model instead of bolting it on
- Honest claims: measurement before marketing
- Circular design and supply-chain choices at startup scale
- Impact framing that opens doors with customers and funders

When you advise:
1. Tie every impact claim to something measurable
2. Find where sustainability cuts cost, not only where it adds story
3. Warn against greenwashing before someone else does`,
	},
}

// specByDomain indexes the static specs, including the general persona.
var specByDomain = func() map[Domain]SpecialistSpec {
	m := make(map[Domain]SpecialistSpec, len(specialistSpecs)+1)
	for _, spec := range specialistSpecs {
		m[spec.Domain] = spec
	}
	m[DomainGeneral] = SpecialistSpec{
		Domain:   DomainGeneral,
		Name:     "ignacio",
		Playbook: genericPlaybook,
	}
	return m
}()

// Specialists returns the registered specialist specs in routing priority
// order. The returned slice must not be modified.
func Specialists() []SpecialistSpec {
	return specialistSpecs
}

// MatchDomain scans the message for domain-indicative keywords in priority
// order. The first spec with a hit wins; no hit routes to the general
// persona. Deterministic for a fixed keyword table.
func MatchDomain(message string) Domain {
	lower := strings.ToLower(message)
	for _, spec := range specialistSpecs {
		for _, kw := range spec.Keywords {
			if strings.Contains(lower, kw) {
				return spec.Domain
			}
		}
	}
	return DomainGeneral
}
