package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show requests and device caches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call("GET", "/api/v1/status", nil)
		},
	}
}

func devicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices <audio|video>",
		Short: "List capture devices as the origin sees them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("type", args[0])
			q.Set("origin", origin)
			q.Set("process", strconv.Itoa(processID))
			q.Set("view", strconv.Itoa(viewID))
			return call("GET", "/api/v1/devices?"+q.Encode(), nil)
		},
	}
}

func generateCommand() *cobra.Command {
	var audioType, videoType, audioID, videoID string
	var accessOnly bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Request a stream, or only check access with --access",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if audioType == "" && videoType == "" {
				return fmt.Errorf("at least one of --audio or --video is required")
			}
			body := client()
			body["audio_type"] = audioType
			body["video_type"] = videoType
			if audioID != "" {
				body["audio_device_id"] = audioID
			}
			if videoID != "" {
				body["video_device_id"] = videoID
			}
			if accessOnly {
				return call("POST", "/api/v1/access", body)
			}
			return call("POST", "/api/v1/streams", body)
		},
	}

	cmd.Flags().StringVar(&audioType, "audio", "", "Audio media type (audio, tab_audio, loopback_audio)")
	cmd.Flags().StringVar(&videoType, "video", "", "Video media type (video, tab_video, desktop_video)")
	cmd.Flags().StringVar(&audioID, "audio-device", "", "Requested audio source id")
	cmd.Flags().StringVar(&videoID, "video-device", "", "Requested video source id")
	cmd.Flags().BoolVar(&accessOnly, "access", false, "Ask for permission without opening devices")
	return cmd
}

func openCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "open <audio|video> <source-id>",
		Short: "Open a single device by source id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := client()
			body["type"] = args[0]
			body["device_id"] = args[1]
			return call("POST", "/api/v1/devices/open", body)
		},
	}
}

func stopCommand() *cobra.Command {
	var mediaType string
	var sessionID int

	cmd := &cobra.Command{
		Use:   "stop [device-id]",
		Short: "Stop a stream device by id, or a session with --type and --session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{
				"process_id": processID,
				"view_id":    viewID,
			}
			switch {
			case len(args) == 1:
				body["device_id"] = args[0]
			case mediaType != "" && sessionID != 0:
				body["type"] = mediaType
				body["session_id"] = sessionID
			default:
				return fmt.Errorf("need a device id or --type with --session")
			}
			return call("POST", "/api/v1/devices/stop", body)
		},
	}

	cmd.Flags().StringVar(&mediaType, "type", "", "Media type of the session")
	cmd.Flags().IntVar(&sessionID, "session", 0, "Session id to stop")
	return cmd
}

func cancelCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "cancel [label]",
		Short: "Cancel a request, or every request of --process with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				return call("DELETE", fmt.Sprintf("/api/v1/clients/%d", processID), nil)
			}
			if len(args) != 1 {
				return fmt.Errorf("need a request label or --all")
			}
			return call("DELETE", "/api/v1/requests/"+url.PathEscape(args[0]), nil)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Cancel all requests of the process")
	return cmd
}

func permissionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "Show per-origin decisions and running streams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call("GET", "/api/v1/permissions", nil)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <origin>",
		Short: "Deny an origin and stop its running streams",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call("POST", "/api/v1/permissions/revoke", map[string]string{"origin": args[0]})
		},
	})
	return cmd
}
