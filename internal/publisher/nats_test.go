package publisher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sakay-eta/internal/notify"
)

func TestSubjectToken(t *testing.T) {
	testCases := map[string]string{
		"QC Hall to Cubao":     "QC_Hall_to_Cubao",
		"QC Hall to Litex/IBP": "QC_Hall_to_Litex_IBP",
		" a.b*c> ":             "a_b_c_",
		"":                     "_",
	}
	for in, want := range testCases {
		assert.Equal(t, want, SubjectToken(in), "input %q", in)
	}
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "sakay.positions.QC_Hall_to_Cubao.3", PositionSubject("sakay", "QC Hall to Cubao", 3))
	assert.Equal(t, "sakay.positions.>", PositionWildcard("sakay"))
	assert.Equal(t, "sakay.notifications.bus", NotificationSubject("sakay", notify.CategoryBus))
}
