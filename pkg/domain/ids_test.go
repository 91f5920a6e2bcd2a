package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "punchclock/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseEmployeeID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseEmployeeID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseEmployeeID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseEmployeeID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, EmployeeID(validUUID), id)
	})
}

func TestParseID_RejectsHostileInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE punches;--", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDepartmentID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	validUUID := uuid.New().String()

	_, errEmployee := ParseEmployeeID(validUUID)
	_, errDepartment := ParseDepartmentID(validUUID)
	_, errSchedule := ParseScheduleID(validUUID)
	_, errPunch := ParsePunchID(validUUID)
	require.NoError(t, errEmployee)
	require.NoError(t, errDepartment)
	require.NoError(t, errSchedule)
	require.NoError(t, errPunch)

	for _, input := range []string{"", "invalid", uuid.Nil.String()} {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errEmployee := ParseEmployeeID(input)
			_, errDepartment := ParseDepartmentID(input)
			_, errSchedule := ParseScheduleID(input)
			_, errPunch := ParsePunchID(input)
			require.Error(t, errEmployee)
			require.Error(t, errDepartment)
			require.Error(t, errSchedule)
			require.Error(t, errPunch)
		})
	}
}

func TestNormalizeIdentifier(t *testing.T) {
	assert.Equal(t, "12345678909", NormalizeIdentifier("123.456.789-09"))
	assert.Equal(t, "12345678909", NormalizeIdentifier(" 123 456 789 09 "))
	assert.Equal(t, "AB12", NormalizeIdentifier("ab-12"))
	assert.Equal(t, "", NormalizeIdentifier("./-"))
}

func TestEmployeeID_JSON(t *testing.T) {
	raw := "6f1c2c1e-9a53-4a61-bf0c-3d3f5e3a1b2c"
	employeeID, err := ParseEmployeeID(raw)
	require.NoError(t, err)

	body, err := json.Marshal(map[string]EmployeeID{"employee_id": employeeID})
	require.NoError(t, err)
	assert.JSONEq(t, `{"employee_id":"`+raw+`"}`, string(body))

	var decoded struct {
		EmployeeID EmployeeID `json:"employee_id"`
	}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, employeeID, decoded.EmployeeID)

	err = json.Unmarshal([]byte(`{"employee_id":"nope"}`), &decoded)
	assert.Error(t, err)
}
