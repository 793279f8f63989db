package plan

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMealSettingAcceptsBoolean(t *testing.T) {
	var meals Meals
	err := json.Unmarshal([]byte(`{"breakfast": true, "lunch": false, "dinner": {"enabled": true, "deliveryTime": "noon"}}`), &meals)
	require.NoError(t, err)

	require.True(t, meals.Breakfast.Enabled)
	require.False(t, meals.Lunch.Enabled)
	require.True(t, meals.Dinner.Enabled)
	require.Equal(t, DeliveryNoon, meals.Dinner.DeliveryTime)
}

func TestMealsNormalizeFillsDefaultSlots(t *testing.T) {
	var meals Meals
	err := json.Unmarshal([]byte(`{"breakfast": true, "lunch": true, "dinner": true}`), &meals)
	require.NoError(t, err)

	meals.Normalize()

	require.Equal(t, DeliveryMorning, meals.Breakfast.DeliveryTime)
	require.Equal(t, DeliveryNoon, meals.Lunch.DeliveryTime)
	require.Equal(t, DeliveryEvening, meals.Dinner.DeliveryTime)
}

func TestMealsNormalizeKeepsExplicitSlots(t *testing.T) {
	meals := Meals{
		Breakfast: MealSetting{Enabled: true, DeliveryTime: DeliveryNoon},
	}
	meals.Normalize()
	require.Equal(t, DeliveryNoon, meals.Breakfast.DeliveryTime)
	// disabled meals get no slot
	require.Equal(t, DeliveryTime(""), meals.Lunch.DeliveryTime)
}

func TestMealsDatabaseRoundTrip(t *testing.T) {
	meals := Meals{
		Breakfast: MealSetting{Enabled: true, DeliveryTime: DeliveryMorning},
		Dinner:    MealSetting{Enabled: true, DeliveryTime: DeliveryEvening},
	}

	value, err := meals.Value()
	require.NoError(t, err)

	var restored Meals
	require.NoError(t, restored.Scan(value))
	require.Equal(t, meals, restored)

	// postgres hands back text columns as strings
	var fromString Meals
	require.NoError(t, fromString.Scan(string(value.([]byte))))
	require.Equal(t, meals, fromString)
}

func TestMealSettingRejectsGarbage(t *testing.T) {
	var ms MealSetting
	require.Error(t, json.Unmarshal([]byte(`"yes"`), &ms))
}
