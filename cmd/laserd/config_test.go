package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/lasercard/glyph"
	"github.com/mastercactapus/lasercard/machine"
	"github.com/mastercactapus/lasercard/machine/grbl"
	"github.com/mastercactapus/lasercard/machine/grbl/grbltest"
	"github.com/mastercactapus/lasercard/programs"
	"github.com/mastercactapus/lasercard/remote"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
}

func TestLoadConfig_Missing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "laserd.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("LASER_PORT", "/dev/ttyACM0")
	path := filepath.Join(t.TempDir(), "laserd.yaml")
	writeFile(t, path, `
addr: ":8080"
serial:
  port: ${LASER_PORT}
  ack_deadline: 2s
actuator:
  url: ws://arm.local:81/
fan_gpio: /sys/class/gpio/gpio17/value
tick: 500ms
card_out:
  - action: spindle-off
  - action: height
    angle: 230
    dwell: 1s
  - action: jog
    x: 201
    y: 350
    feed: 10000
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 2*time.Second, cfg.Serial.AckDeadline)
	assert.Equal(t, 115200, cfg.Serial.Baud)
	assert.Equal(t, "ws://arm.local:81/", cfg.Actuator.URL)
	assert.Equal(t, 500*time.Millisecond, cfg.Tick)
	assert.Equal(t, []machine.Step{
		{Action: machine.SpindleOff},
		{Action: machine.Height, Angle: 230, Dwell: time.Second},
		{Action: machine.Jog, X: 201, Y: 350, Feed: 10000},
	}, cfg.CardOut)
	assert.Nil(t, cfg.CardIn)

	mc := cfg.MachineConfig()
	assert.Equal(t, machine.GPIOFan{Path: "/sys/class/gpio/gpio17/value"}, mc.Fan)
	assert.Equal(t, cfg.CardOut, mc.CardOut)
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "bad.yaml")
	writeFile(t, path, "addr: [")
	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "parse config")

	path = filepath.Join(dir, "noport.yaml")
	writeFile(t, path, "serial:\n  port: \"\"\n")
	_, err = LoadConfig(path)
	assert.ErrorContains(t, err, "serial.port")

	writeFile(t, path, "serial:\n  port: \"\"\n  simulate: true\n")
	_, err = LoadConfig(path)
	assert.NoError(t, err)
}

func TestConfig_Simulate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Serial.Simulate = true

	rw, err := cfg.MachineConfig().Open()
	require.NoError(t, err)
	defer rw.Close()
	require.IsType(t, &grbltest.Device{}, rw)
	// acknowledges like the firmware, so no line waits out its deadline
	assert.Equal(t, grbl.DefaultMaxAcks, rw.(*grbltest.Device).Acks)

	cfg.Serial.MaxAcks = 1
	rw, err = cfg.MachineConfig().Open()
	require.NoError(t, err)
	defer rw.Close()
	assert.Equal(t, 1, rw.(*grbltest.Device).Acks)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, loadDotEnv(filepath.Join(dir, ".env")))

	path := filepath.Join(dir, ".env")
	writeFile(t, path, "LASERD_TEST_VAR=engraver\n")
	t.Setenv("LASERD_TEST_VAR", "")
	os.Unsetenv("LASERD_TEST_VAR")
	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "engraver", os.Getenv("LASERD_TEST_VAR"))
}

func TestRouter_Programs(t *testing.T) {
	dir := programs.NewDir(t.TempDir())
	l := remote.NewLaser(machine.New(machine.Config{Programs: dir}), nil, nil, nil)
	srv := remote.NewServer(l.Namespace())
	defer srv.Close()

	ts := httptest.NewServer(newRouter(srv, dir))
	defer ts.Close()

	req, err := http.NewRequest("PUT", ts.URL+"/programs/card.gcode", strings.NewReader("G0 X1\n"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, err = http.Get(ts.URL + "/programs/card.gcode")
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "G0 X1\n", string(data))

	resp, err = http.Get(ts.URL + "/programs/missing.gcode")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListVariants(t *testing.T) {
	lf := glyph.DefaultLayoutFile()
	var buf strings.Builder
	require.NoError(t, listVariants(&buf, glyph.NewLayouts(t.TempDir(), lf.Variants)))

	names := strings.Fields(buf.String())
	assert.Len(t, names, len(lf.Variants))
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "hs")
	assert.Contains(t, names, "zdin")
}
