package depreciation

import "testing"

func TestCondition_Deterministic(t *testing.T) {
	m := NewModel()

	d1, w1 := m.Condition(12345, 60)
	d2, w2 := m.Condition(12345, 60)
	if d1 != d2 || w1 != w2 {
		t.Errorf("same seed and age must reproduce: (%v,%v) vs (%v,%v)", d1, w1, d2, w2)
	}
}

func TestCondition_Bounds(t *testing.T) {
	m := NewModel()

	for seed := int64(0); seed < 50; seed++ {
		for _, age := range []int{0, 1, 6, 24, 120, 360, 1200} {
			d, w := m.Condition(seed, age)
			if d < 0 || d > conditionCap {
				t.Fatalf("seed %d age %d: damage %v outside [0, %v]", seed, age, d, conditionCap)
			}
			if w < 0 || w > conditionCap {
				t.Fatalf("seed %d age %d: wear %v outside [0, %v]", seed, age, w, conditionCap)
			}
		}
	}
}

func TestCondition_NewItemIsClean(t *testing.T) {
	m := NewModel()

	d, w := m.Condition(99, 0)
	if d != 0 || w != 0 {
		t.Errorf("age 0 should be pristine, got damage %v wear %v", d, w)
	}
	d, w = m.Condition(99, -5)
	if d != 0 || w != 0 {
		t.Errorf("negative age should be pristine, got damage %v wear %v", d, w)
	}
}

func TestCondition_SeedsDiffer(t *testing.T) {
	m := NewModel()

	same := true
	for seed := int64(1); seed <= 10; seed++ {
		d1, w1 := m.Condition(seed, 80)
		d2, w2 := m.Condition(seed+1000, 80)
		if d1 != d2 || w1 != w2 {
			same = false
			break
		}
	}
	if same {
		t.Error("ten seed pairs produced identical conditions; noise looks unseeded")
	}
}

func TestCondition_AgeCapsOut(t *testing.T) {
	m := NewModel()

	// Far past both ramps even the luckiest jitter pins at the cap.
	d, w := m.Condition(7, 2000)
	if d != conditionCap || w != conditionCap {
		t.Errorf("ancient item should cap at %v/%v, got %v/%v", conditionCap, conditionCap, d, w)
	}
}
