// Package openairealtime provides a client for OpenAI's Realtime API over
// WebRTC.
//
// A session is set up in two steps. The server side, which holds the API key,
// mints a short-lived client secret bound to the session configuration:
//
//	client := openairealtime.NewClient(apiKey)
//	secret, err := client.CreateClientSecret(ctx, &openairealtime.SessionConfig{
//	    Type:         openairealtime.SessionTypeRealtime,
//	    Model:        openairealtime.ModelGPTRealtime,
//	    Instructions: "You are a helpful assistant.",
//	    Audio: &openairealtime.AudioConfig{
//	        Output: &openairealtime.AudioOutput{Voice: openairealtime.VoiceAlloy},
//	    },
//	})
//
// The client side then dials a peer connection with that secret. Events
// arrive on the "oai-events" data channel and are delivered to the handler
// as raw JSON:
//
//	conn, err := openairealtime.Dial(ctx, secret.Value, openairealtime.DialConfig{
//	    LocalTrack: micTrack,
//	    OnMessage: func(data []byte) {
//	        ev, err := openairealtime.ParseServerEvent(data)
//	        ...
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	err = conn.Send(openairealtime.NewUserTextItem(itemID, "안녕하세요"))
package openairealtime
