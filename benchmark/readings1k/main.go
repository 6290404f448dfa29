package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	iotGrpc "liyu1981.xyz/seizure-alert-service/pkg/grpc"
)

var maxDevices int = 1000
var httpHostPort string = "127.0.0.1:1080"
var grpcHostPort string = "127.0.0.1:10801"

var grpcClient *iotGrpc.DeviceServiceClient

var rnd *rand.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
var rndMu sync.Mutex

func main() {
	deviceIDs := make([]string, maxDevices)
	for i := range maxDevices {
		deviceIDs[i] = uuid.NewString()
	}
	fmt.Printf("generated %v device IDs\n", maxDevices)

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", httpHostPort))
	if err != nil {
		log.Fatal("Failed to connect to HTTP server:", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatal("HTTP server not available")
	}

	fmt.Printf("http server verified\n")

	conn, err := grpc.NewClient(grpcHostPort, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatal("Failed to connect to gRPC server:", err)
	}
	defer conn.Close()
	grpcClient = iotGrpc.NewDeviceServiceClient(conn)

	fmt.Printf("gRPC client created\n")

	var startTime time.Time
	var usedTime time.Duration

	startTime = time.Now()
	wg := sync.WaitGroup{}
	for i := range maxDevices {
		wg.Add(1)
		go func() {
			registerToken(deviceIDs[i])
			fmt.Printf("\rregistered token for device %v", i)
			wg.Done()
		}()
	}
	wg.Wait()
	usedTime = time.Since(startTime)

	fmt.Printf(
		"\rregistered tokens for %v devices: used time=%v seconds, throughput=%v action/second\n",
		maxDevices, usedTime.Seconds(), float64(maxDevices)/usedTime.Seconds(),
	)

	startTime = time.Now()
	wg = sync.WaitGroup{}
	for i := range maxDevices {
		wg.Add(1)
		go func() {
			doAction(deviceIDs[i])
			wg.Done()
		}()
	}
	wg.Wait()
	usedTime = time.Since(startTime)

	fmt.Printf(
		"\n\rdid actions for %v devices: used time=%v seconds, throughput=%v action/second\n",
		maxDevices, usedTime.Seconds(), float64(maxDevices*4)/usedTime.Seconds(),
	)
}

func flipCoin() bool {
	rndMu.Lock()
	defer rndMu.Unlock()
	return rnd.Int31n(100000)%2 == 0
}

func rndFloat64(min, max float64, decimal int) float64 {
	rndMu.Lock()
	val := min + rnd.Float64()*(max-min)
	rndMu.Unlock()
	multiplier := math.Pow10(decimal)
	return math.Round(val*multiplier) / multiplier
}

func rndSleep() {
	rndMu.Lock()
	d := time.Duration(100+rnd.Int31n(1000)) * time.Millisecond
	rndMu.Unlock()
	time.Sleep(d)
}

func postJSON(path string, payload any) {
	jsonData, _ := json.Marshal(payload)
	resp, err := http.Post(fmt.Sprintf("http://%s%s", httpHostPort, path), "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		fmt.Printf("\nerror: %v\n", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("\nresponse status code != 200: %v\n", resp.Status)
	}
}

func get(path string, params url.Values) {
	resp, err := http.Get(fmt.Sprintf("http://%s%s?%s", httpHostPort, path, params.Encode()))
	if err != nil {
		fmt.Printf("\nerror: %v\n", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("\nresponse status code != 200: %v\n", resp.Status)
	}
}

func registerToken(deviceID string) {
	token := "bench-" + deviceID

	if flipCoin() {
		postJSON("/updateFcmToken", map[string]string{"device_id": deviceID, "fcm_token": token})
	} else {
		if _, err := grpcClient.UpdateDeliveryToken(context.Background(), deviceID, token); err != nil {
			panic(fmt.Sprintf("err: %v", err))
		}
	}
}

func doAction(deviceID string) {
	actions := []func(){
		genPostReadingAction(deviceID),
		genGetRecentReadingsAction(deviceID),
		genGetAlertHistoryAction(deviceID),
		genGetLatestProbabilityAction(deviceID),
	}
	actionNames := []string{
		"PostReading",
		"GetRecentReadings",
		"GetAlertHistory",
		"GetLatestProbability",
	}
	rndMu.Lock()
	rnd.Shuffle(len(actions), func(i, j int) {
		actions[i], actions[j] = actions[j], actions[i]
		actionNames[i], actionNames[j] = actionNames[j], actionNames[i]
	})
	rndMu.Unlock()
	for index, action := range actions {
		action()
		fmt.Printf("\rexecuted action %v for device %v", actionNames[index], deviceID)
		rndSleep()
	}
}

func genPostReadingAction(deviceID string) func() {
	return func() {
		p := rndFloat64(0.0, 1.0, 3)

		if flipCoin() {
			postJSON("/postReading", map[string]any{"device_id": deviceID, "probability": p})
		} else {
			if _, err := grpcClient.PostReading(context.Background(), deviceID, p); err != nil {
				fmt.Printf("\nerror: %v\n", err)
			}
		}
	}
}

func genGetRecentReadingsAction(deviceID string) func() {
	return func() {
		if flipCoin() {
			get("/getRecentReadings", url.Values{"device_id": {deviceID}, "count": {"20"}})
		} else {
			if _, err := grpcClient.GetRecentReadings(context.Background(), deviceID, 20); err != nil {
				fmt.Printf("\nerror: %v\n", err)
			}
		}
	}
}

func genGetAlertHistoryAction(deviceID string) func() {
	return func() {
		if flipCoin() {
			get("/getAlertHistory", url.Values{"device_id": {deviceID}})
		} else {
			if _, err := grpcClient.GetAlertHistory(context.Background(), deviceID, 50); err != nil {
				fmt.Printf("\nerror: %v\n", err)
			}
		}
	}
}

func genGetLatestProbabilityAction(deviceID string) func() {
	return func() {
		if flipCoin() {
			get("/getLatestProbability", url.Values{"device_id": {deviceID}})
		} else {
			if _, err := grpcClient.GetLatestProbability(context.Background(), deviceID); err != nil {
				fmt.Printf("\nerror: %v\n", err)
			}
		}
	}
}
