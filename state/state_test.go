package state

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deepEq(_ string, a, b interface{}) bool { return reflect.DeepEqual(a, b) }

func TestEntityState_NewInstanceReportsEverySetAttributeAsChanged(t *testing.T) {
	s := New("user")
	s.Set("email", "a@example.com")
	changes := s.Changes(deepEq)
	require.Len(t, changes, 1)
	assert.Equal(t, "email", changes[0].Name)
	assert.False(t, changes[0].WasSet)
}

func TestEntityState_ResetClearsDirtiness(t *testing.T) {
	s := New("user")
	s.Set("email", "a@example.com")
	s.Reset()
	assert.True(t, s.IsEmpty(deepEq))
	assert.False(t, s.IsNew())
}

func TestEntityState_FromRowStartsClean(t *testing.T) {
	s := FromRow("user", map[string]interface{}{"id": 1, "email": "a@example.com"})
	assert.True(t, s.IsEmpty(deepEq))
	assert.False(t, s.IsNew())
}

func TestEntityState_ChangesOnlyReportsModifiedAttributes(t *testing.T) {
	s := FromRow("user", map[string]interface{}{"id": 1, "email": "a@example.com"})
	s.Set("email", "b@example.com")
	changes := s.Changes(deepEq)
	require.Len(t, changes, 1)
	assert.Equal(t, "email", changes[0].Name)
	assert.Equal(t, "a@example.com", changes[0].Before)
	assert.Equal(t, "b@example.com", changes[0].After)
}

func TestEntityState_RequireLoadedErrorsForLazyRelation(t *testing.T) {
	s := New("user")
	err := s.RequireLoaded("manager")
	require.Error(t, err)
}

func TestEntityState_PropagateCompositeMarksOwnerDirty(t *testing.T) {
	s := FromRow("product", map[string]interface{}{"dims": map[string]interface{}{"w": 1, "h": 2}})
	s.PropagateComposite("dims", map[string]interface{}{"w": 3})
	changes := s.Changes(deepEq)
	require.Len(t, changes, 1)
	assert.Equal(t, "dims", changes[0].Name)
}
