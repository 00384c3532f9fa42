package app

import (
	"context"
	"fmt"
	"io"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/open_ring/internal/config"
	"github.com/relabs-tech/open_ring/internal/imu"
)

// formatConsoleLine decodes one telemetry frame into a printable line.
func formatConsoleLine(payload []byte) (string, error) {
	s, err := imu.ParseFrame(string(payload))
	if err != nil {
		return "", err
	}
	sc := s.Scaled()
	return fmt.Sprintf(
		"[IMU] ax=%6d ay=%6d az=%6d  gx=%6d gy=%6d gz=%6d | a=(%6.3f %6.3f %6.3f)g  w=(%7.2f %7.2f %7.2f)°/s",
		s.Ax, s.Ay, s.Az, s.Gx, s.Gy, s.Gz,
		sc.Ax, sc.Ay, sc.Az, sc.Gx, sc.Gy, sc.Gz,
	), nil
}

// consoleHandler prints every valid frame to out and skips malformed ones.
func consoleHandler(out io.Writer) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		line, err := formatConsoleLine(msg.Payload())
		if err != nil {
			log.Printf("console: skipping frame on %s: %v", msg.Topic(), err)
			return
		}
		fmt.Fprintln(out, line)
	}
}

// RunConsoleMQTT prints telemetry frames published by the streamer until ctx
// is cancelled.
func RunConsoleMQTT(ctx context.Context, cfg *config.Config, out io.Writer) error {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	nameToken := client.Subscribe(cfg.TopicTelemetry+"/name", 0, func(_ mqtt.Client, msg mqtt.Message) {
		log.Printf("console: streaming device is %q", msg.Payload())
	})
	nameToken.Wait()
	if nameToken.Error() != nil {
		return nameToken.Error()
	}

	token := client.Subscribe(cfg.TopicTelemetry, 0, consoleHandler(out))
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicTelemetry)

	<-ctx.Done()

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
