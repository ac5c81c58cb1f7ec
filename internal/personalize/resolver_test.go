package personalize

import (
	"testing"

	"github.com/cadencehq/cadence/pkg/schema"
	"github.com/stretchr/testify/assert"
)

func sampleLead() *schema.Lead {
	return &schema.Lead{
		ID:        "lead-1",
		Name:      "Maria Santos",
		Company:   "Acme Robotics",
		Email:     "maria@acme.example",
		Score:     85,
		Status:    schema.LeadStatusQualified,
		AIInsight: "recently raised a Series B",
		Knowledge: map[string]any{
			"industry": "manufacturing",
			"title":    "VP of Operations",
		},
	}
}

func TestResolve_AllTagsReplacedInOnePass(t *testing.T) {
	tpl := "Hi {{first_name}}, I saw {{company}} is growing in {{industry}}. " +
		"As {{title}}, you might like this."
	got := Resolve(tpl, sampleLead(), nil)
	assert.Equal(t,
		"Hi Maria, I saw Acme Robotics is growing in manufacturing. "+
			"As VP of Operations, you might like this.",
		got)
}

func TestResolve_CaseInsensitiveTags(t *testing.T) {
	lead := sampleLead()
	upper := Resolve("Hello {{FIRST_NAME}} from {{Company}}", lead, nil)
	lower := Resolve("Hello {{first_name}} from {{company}}", lead, nil)
	assert.Equal(t, lower, upper)
	assert.Equal(t, "Hello Maria from Acme Robotics", lower)
}

func TestResolve_UnknownTagStripped(t *testing.T) {
	got := Resolve("Re: {{nonexistent_field}} follow-up", sampleLead(), nil)
	assert.Equal(t, "Re:  follow-up", got)
}

func TestResolve_SenderContext(t *testing.T) {
	sender := &SenderContext{Name: "Jordan", Company: "Cadence"}
	got := Resolve("Best, {{your_name}} at {{sender_company}}", sampleLead(), sender)
	assert.Equal(t, "Best, Jordan at Cadence", got)
}

func TestResolve_SenderTagsWithoutSender(t *testing.T) {
	got := Resolve("Best, {{your_name}}", sampleLead(), nil)
	assert.Equal(t, "Best, ", got)
}

func TestResolve_ScoreAndInsight(t *testing.T) {
	got := Resolve("Score {{score}}: {{ai_insight}}", sampleLead(), nil)
	assert.Equal(t, "Score 85: recently raised a Series B", got)
}

func TestResolve_NoTags(t *testing.T) {
	tpl := "plain text, no substitutions"
	assert.Equal(t, tpl, Resolve(tpl, sampleLead(), nil))
}

func TestResolve_UnclosedTagLeftLiteral(t *testing.T) {
	got := Resolve("Hello {{first_name", sampleLead(), nil)
	assert.Equal(t, "Hello {{first_name", got)
}

func TestResolve_RepeatedTag(t *testing.T) {
	got := Resolve("{{company}} / {{company}}", sampleLead(), nil)
	assert.Equal(t, "Acme Robotics / Acme Robotics", got)
}

func TestResolve_WhitespaceInsideTag(t *testing.T) {
	got := Resolve("Hi {{ first_name }}", sampleLead(), nil)
	assert.Equal(t, "Hi Maria", got)
}

func TestResolve_NilLead(t *testing.T) {
	got := Resolve("Hi {{first_name}}", nil, nil)
	assert.Equal(t, "Hi ", got)
}
