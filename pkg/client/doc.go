// Package client is the evidence custody ledger Go SDK.
//
// It provides everything an integration needs to talk to custodyd:
// registering evidence, driving custody transitions, uploading and
// downloading disk images, and reading audit trails, version history, and
// integrity reports.
//
// # Connecting
//
//	c, err := client.New("http://localhost:8420")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// When the server is configured with bearer role binding, attach the token
// issued by your credential service:
//
//	c, _ := client.New("https://custody.example.org",
//	    client.WithBearerToken(token),
//	)
//
// # Registering evidence
//
//	res, err := c.CreateEvidence(ctx, client.CreateEvidenceRequest{
//	    EvidenceID:  "HD-2031",
//	    CaseID:      "CASE-4412",
//	    Description: "seized laptop drive, bay 2",
//	    ImageHash:   sha256Hex,
//	    Actor:       "t.nguyen",
//	    Role:        "ForensicTechnician",
//	})
//	fmt.Println(res.TransactionID)
//
// The raw case id never reaches the ledger: the server stores a salted
// fingerprint and discards the original value.
//
// # Custody transitions
//
//	c.CheckIn(ctx, "HD-2031", client.CheckInRequest{
//	    Custodian: "locker-14", Actor: "t.nguyen", Role: "ForensicTechnician",
//	})
//	c.Transfer(ctx, "HD-2031", client.TransferRequest{
//	    ToCustodian: "d.okafor", Actor: "m.reyes", Role: "EvidenceManager",
//	})
//	c.Remove(ctx, "HD-2031", client.RemoveRequest{
//	    Notes: "released to prosecutor", Actor: "m.reyes", Role: "EvidenceManager",
//	})
//
// Failed transitions come back as *APIError carrying the HTTP status; use
// IsNotFound and IsConflict for the common cases.
//
// # Reading the trail
//
//	events, _ := c.GetEvents(ctx, "HD-2031")   // custody trail, oldest first
//	history, _ := c.GetHistory(ctx, "HD-2031") // every persisted version
//
// # Disk images and integrity
//
//	f, _ := os.Open("drive.img")
//	up, _ := c.UploadImage(ctx, "HD-2031", "drive.img", f)
//	// bind up.SHA256 into the record at create time
//
//	report, _ := c.Verify(ctx, "HD-2031")
//	switch report.Outcome {
//	case "verified", "unavailable", "tampered":
//	    // ...
//	}
package client
