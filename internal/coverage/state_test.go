package coverage

import "testing"

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    Stage
		to      Stage
		wantErr bool
	}{
		{"Idle to Validating", StageIdle, StageValidating, false},
		{"Validating to Resolving", StageValidating, StageResolving, false},
		{"Validating to Done", StageValidating, StageDone, false},
		{"Resolving to Instrumenting", StageResolving, StageInstrumenting, false},
		{"Instrumenting to Writing", StageInstrumenting, StageWriting, false},
		{"Writing to Done", StageWriting, StageDone, false},

		{"Idle to Done", StageIdle, StageDone, true},
		{"Validating to Writing", StageValidating, StageWriting, true},
		{"Writing to Resolving", StageWriting, StageResolving, true},
		{"Done to anything", StageDone, StageValidating, true},
		{"Unknown source", Stage("bogus"), StageDone, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTransition(%v, %v) error = %v, wantErr %v", tt.from, tt.to, err, tt.wantErr)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	if !IsTerminal(StageDone) || IsTerminal(StageWriting) {
		t.Error("only Done is terminal")
	}
}
