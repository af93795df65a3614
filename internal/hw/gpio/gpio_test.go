package gpio

import "testing"

func TestNewDriver_Mock(t *testing.T) {
	d, err := NewDriver(true)
	if err != nil {
		t.Fatalf("NewDriver(true): %v", err)
	}
	if _, ok := d.(*MockDriver); !ok {
		t.Errorf("NewDriver(true) = %T, want *MockDriver", d)
	}
}

func TestMockDriver_RemembersLevels(t *testing.T) {
	var m MockDriver
	if lvl, _ := m.ReadPin(5); lvl != Low {
		t.Errorf("unwritten pin = %v, want Low", lvl)
	}
	if err := m.SetupPin(5, Output); err != nil {
		t.Fatal(err)
	}
	m.WritePin(5, High)
	if lvl, _ := m.ReadPin(5); lvl != High {
		t.Errorf("pin 5 = %v, want High", lvl)
	}
	m.WritePin(5, Low)
	if lvl, _ := m.ReadPin(5); lvl != Low {
		t.Errorf("pin 5 = %v, want Low", lvl)
	}
}

func TestMockDriver_PWM(t *testing.T) {
	var m MockDriver
	if err := m.WritePWM(18, 1, 2); err == nil {
		t.Error("expected error writing PWM before setup")
	}
	if err := m.SetupPWM(18, 0); err == nil {
		t.Error("expected error for zero frequency")
	}
	if err := m.SetupPWM(18, 1_000_000); err != nil {
		t.Fatalf("SetupPWM: %v", err)
	}
	if err := m.WritePWM(18, 1500, 20000); err != nil {
		t.Fatalf("WritePWM: %v", err)
	}
	if duty, cycle := m.Duty(18); duty != 1500 || cycle != 20000 {
		t.Errorf("Duty(18) = %d/%d, want 1500/20000", duty, cycle)
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
