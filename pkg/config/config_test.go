package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func TestLoadDefault(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir("../../cmd/kioskctl"); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Serial.BaudRate != 115200 {
		t.Fatalf("unexpected baud rate: %d", cfg.Serial.BaudRate)
	}
	if !cfg.Serial.UseMock {
		t.Fatalf("expected use_mock true from fixture")
	}
	if cfg.Consumables.StorageSlotCapacity != 100 {
		t.Fatalf("unexpected storage slot capacity: %d", cfg.Consumables.StorageSlotCapacity)
	}
}

// rawFixture mirrors only the fields of testdata/default.yaml that are not
// duration strings, so it can be parsed directly with yaml.Unmarshal rather
// than routed through viper's mapstructure duration hook.
type rawFixture struct {
	Serial struct {
		PortBill  string `yaml:"port_bill"`
		PortCoin  string `yaml:"port_coin"`
		BaudRate  int    `yaml:"baud_rate"`
		UseMock   bool   `yaml:"use_mock"`
		UseMockHW bool   `yaml:"use_mock_hardware"`
	} `yaml:"serial"`
	Consumables struct {
		StorageSlotCapacity int `yaml:"storage_slot_capacity"`
		LowBillThreshold    int `yaml:"low_bill_threshold"`
		LowCoinThreshold    int `yaml:"low_coin_threshold"`
	} `yaml:"consumables"`
	API struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"api"`
}

// TestFixtureMatchesDefaults parses testdata/default.yaml straight off disk,
// bypassing viper, to confirm the fixture kept alongside this package still
// agrees with Default()'s values. The fixture the binary ships under
// cmd/kioskctl/config is not read here.
func TestFixtureMatchesDefaults(t *testing.T) {
	b, err := os.ReadFile("testdata/default.yaml")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	var fx rawFixture
	if err := yaml.Unmarshal(b, &fx); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}

	def := Default()
	if fx.Serial.BaudRate != def.Serial.BaudRate {
		t.Fatalf("fixture baud_rate %d != Default() %d", fx.Serial.BaudRate, def.Serial.BaudRate)
	}
	if fx.Consumables.StorageSlotCapacity != def.Consumables.StorageSlotCapacity {
		t.Fatalf("fixture storage_slot_capacity %d != Default() %d", fx.Consumables.StorageSlotCapacity, def.Consumables.StorageSlotCapacity)
	}
	if fx.API.ListenAddr != def.API.ListenAddr {
		t.Fatalf("fixture listen_addr %q != Default() %q", fx.API.ListenAddr, def.API.ListenAddr)
	}
	if !fx.Serial.UseMock || !fx.Serial.UseMockHW {
		t.Fatalf("expected fixture to default to simulator mode")
	}
}
