package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"ticketwatch/internal/misc"
)

const FCMSendURL = "https://fcm.googleapis.com/fcm/send"

type FCMSendResponse struct {
	Success int             `json:"success"`
	Failure int             `json:"failure"`
	Results []FCMSendResult `json:"results"`
}

type FCMSendResult struct {
	Error *string `json:"error"`
}

type FCMSendRequest struct {
	Notification    FCMNotification `json:"notification"`
	Data            FCMData         `json:"data"`
	RegistrationIDs []string        `json:"registration_ids"`
}

type FCMNotification struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	ClickAction string `json:"click_action"`
	Sound       string `json:"sound"`
}

type FCMData struct {
	WatchID string `json:"watch_id"`
	BuyURL  string `json:"buy_url"`
}

// FCM pushes alerts through the legacy Firebase Cloud Messaging HTTP API. The user's
// contact is the device registration token.
type FCM struct {
	*http.Client
	Key    string
	URL    string
	Logger logger
}

func NewFCM(key string, l logger) *FCM {
	return &FCM{Client: &http.Client{Timeout: DefaultCatalogTimeout}, Key: key, URL: FCMSendURL, Logger: l}
}

func (c *FCM) Send(ctx context.Context, n Notification) error {
	resp, err := c.SendNotification(ctx, FCMSendRequest{
		Notification: FCMNotification{
			Title:       alertTitle(n),
			Body:        FormatAlertMessage(n),
			ClickAction: n.BuyURL,
			Sound:       "default",
		},
		Data:            FCMData{WatchID: n.WatchID, BuyURL: n.BuyURL},
		RegistrationIDs: []string{n.Contact},
	})
	if err != nil {
		return errors.Wrapf(ErrNotifyFailed, "fcm, watch: %s, err: %v", n.WatchID, err)
	}
	if resp.Success < 1 {
		reason := "unknown"
		if len(resp.Results) > 0 && resp.Results[0].Error != nil {
			reason = *resp.Results[0].Error
		}
		return errors.Wrapf(ErrNotifyFailed, "fcm, watch: %s, reason: %s", n.WatchID, reason)
	}
	return nil
}

func (c *FCM) SendNotification(ctx context.Context, fcmReqBody FCMSendRequest) (FCMSendResponse, error) {
	reqBody, err := json.Marshal(fcmReqBody)
	if err != nil {
		return FCMSendResponse{}, errors.Wrap(err, "SendNotification: FCMSendRequest JSON marshalling error")
	}

	req, err := newRequest(ctx, http.MethodPost, c.URL, bytes.NewReader(reqBody))
	if err != nil {
		return FCMSendResponse{}, errors.Wrap(err, "SendNotification: error creating HTTP request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+c.Key)

	resp, err := c.Client.Do(req)
	if err != nil {
		return FCMSendResponse{}, errors.Wrap(err, "SendNotification: error doing request")
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.Logger.Errorf("SendNotification: error closing response body, err: %v", err)
		}
	}()

	fcmSendResp := FCMSendResponse{}
	respBody, err := io.ReadAll(http.MaxBytesReader(nil, resp.Body, 300000))
	if err != nil {
		return fcmSendResp, errors.Wrapf(err,
			"SendNotification: error reading FCMSendAPI response body, status: %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return fcmSendResp, errors.Errorf("SendNotification: FCMSendAPI status: %s, body: %s",
			resp.Status, misc.BytesLimit(respBody, 2000))
	}
	err = json.Unmarshal(respBody, &fcmSendResp)
	return fcmSendResp, errors.Wrapf(err,
		"SendNotification: error unmarshalling FCMSendAPI response body: %s", misc.BytesLimit(respBody, 2000))
}
