package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"

	"spacetimekv/internal/testutil"
)

func TestLoadConfigDefault(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir("../.."); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	LoadConfig("")
	if AppConfig.Physics.SpeedOfLight != 299792458.0 {
		t.Fatalf("unexpected speed_of_light: %v", AppConfig.Physics.SpeedOfLight)
	}
	if AppConfig.Network.DiscoveryTag != "spacetimekv" {
		t.Fatalf("unexpected discovery tag: %s", AppConfig.Network.DiscoveryTag)
	}
}

func TestLoadConfigOverride(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir("../.."); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	LoadConfig("simulation")
	if AppConfig.Physics.SpeedOfLight != 100.0 {
		t.Fatalf("expected simulation speed_of_light 100, got %v", AppConfig.Physics.SpeedOfLight)
	}
	if AppConfig.Network.DiscoveryTag != "spacetimekv-simulation" {
		t.Fatalf("expected discovery tag override")
	}
}

func TestLoadConfigSandbox(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	defer sb.Cleanup()

	if err := os.Mkdir(sb.Path("config"), 0700); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}

	data := []byte("physics:\n  speed_of_light: 1.0\nself_coords:\n  x: 1\n  y: 2\n  z: 3\n")
	if err := sb.WriteFile("config/default.yaml", data, 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(sb.Root); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	LoadConfig("")

	if AppConfig.Physics.SpeedOfLight != 1.0 {
		t.Fatalf("expected speed_of_light 1.0, got %v", AppConfig.Physics.SpeedOfLight)
	}
	if AppConfig.SelfCoords.X != 1 || AppConfig.SelfCoords.Y != 2 || AppConfig.SelfCoords.Z != 3 {
		t.Fatalf("unexpected self_coords: %+v", AppConfig.SelfCoords)
	}
}
